// Package mac implements the MAC Registry (spec §4.2): the 8-slot channel
// table, per-channel default PhySettings, and the apply/restore discipline
// around a transmit. It routes receive events onto a bounded, drop-newest
// uplink queue and offers send/apply_settings/restore_defaults and
// frequency lookup to the downlink path.
package mac

import (
	"fmt"
	"log"
	"sync"

	"github.com/agsys/lorawan-gateway-forwarder/internal/radio"
)

// NumChannels is the fixed channel table size spec §3 requires.
const NumChannels = 8

// RxPacket is produced from a radio.PhyEvent (spec §3). Payload is nil for
// a CrcError or a TransmitCompleted accounting entry; CrcOK distinguishes
// those two from an actual ReceiveCompleted.
type RxPacket struct {
	Channel   int
	RFChain   int
	FreqMHz   float64
	CrcOK     bool
	Completed bool // true for a TransmitCompleted accounting entry
	SF        int
	BWkHz     int
	CodingRate int
	RSSI      int32
	SNR       float64
	Payload   []byte
	Size      int
}

// slot is one entry of the channel table: either empty, or bound to a
// radio.Port with its persistent default settings.
type slot struct {
	bound    bool
	port     radio.Port
	defaults radio.PhySettings
}

// Registry owns the 8-slot table and fans receive events onto rxQ with a
// drop-newest policy, since radio airtime cannot be rewound (spec §4.2).
type Registry struct {
	mu     sync.Mutex
	slots  [NumChannels]slot
	rxQ    chan RxPacket
	closed bool
}

// New returns a Registry whose uplink queue holds at most rxQueueLen
// pending packets before drop-newest kicks in.
func New(rxQueueLen int) *Registry {
	return &Registry{
		rxQ: make(chan RxPacket, rxQueueLen),
	}
}

// RxQueue returns the channel the uplink worker reads from.
func (r *Registry) RxQueue() <-chan RxPacket {
	return r.rxQ
}

// Bind attaches port to channel, sets its syncword/default frequency/
// default SF/BW/CR, and places it in continuous receive. Binding fails
// (and the channel remains unbound) if the port's Init fails (spec §4.1).
func (r *Registry) Bind(channel int, port radio.Port, defaults radio.PhySettings) error {
	if channel < 0 || channel >= NumChannels {
		return fmt.Errorf("mac: channel %d out of range [0,%d)", channel, NumChannels)
	}

	r.mu.Lock()
	for i, s := range r.slots {
		if i != channel && s.bound && s.defaults.FrequencyHz == defaults.FrequencyHz {
			r.mu.Unlock()
			return fmt.Errorf("mac: frequency %d Hz already bound to channel %d", defaults.FrequencyHz, i)
		}
	}
	r.mu.Unlock()

	if err := port.Init(); err != nil {
		return fmt.Errorf("mac: channel %d init failed: %w", channel, err)
	}
	if err := port.SetDefaultSettings(defaults); err != nil {
		return fmt.Errorf("mac: channel %d set defaults failed: %w", channel, err)
	}
	if err := port.EnterContinuousReceive(); err != nil {
		return fmt.Errorf("mac: channel %d enter rx failed: %w", channel, err)
	}

	r.mu.Lock()
	r.slots[channel] = slot{bound: true, port: port, defaults: defaults}
	r.mu.Unlock()

	port.OnPhyEvent(func(ev radio.PhyEvent) { r.handleEvent(channel, ev) })
	return nil
}

// handleEvent translates one radio.PhyEvent into an RxPacket and enqueues
// it, dropping the newest packet if rxQ is full (spec §4.2's rationale:
// latent rx buffers are more harmful than a dropped datagram).
func (r *Registry) handleEvent(channel int, ev radio.PhyEvent) {
	r.mu.Lock()
	s := r.slots[channel]
	r.mu.Unlock()
	if !s.bound {
		return
	}

	pkt := RxPacket{
		Channel:    channel,
		FreqMHz:    float64(s.defaults.FrequencyHz) / 1e6,
		SF:         s.defaults.SpreadingFactor,
		BWkHz:      s.defaults.BandwidthHz / 1000,
		CodingRate: s.defaults.CodingRate,
		RSSI:       s.port.LastPacketRSSI(),
		SNR:        s.port.LastPacketSNR(),
	}

	switch ev.Kind {
	case radio.ReceiveCompleted:
		if ev.Len == 0 {
			// No payload despite a receive signal; still account for the
			// attempt, not the success.
			pkt.CrcOK = false
		} else {
			pkt.CrcOK = true
			pkt.Payload = append([]byte(nil), ev.Payload[:ev.Len]...)
			pkt.Size = ev.Len
		}
	case radio.CrcError:
		pkt.CrcOK = false
	case radio.TransmitCompleted:
		pkt.Completed = true
	default:
		return
	}

	select {
	case r.rxQ <- pkt:
	default:
		log.Printf("mac: rxQ full, dropping packet from channel %d", channel)
	}
}

// ApplySettings writes a transient override atomically with respect to
// transmit (spec §4.2). Callers MUST pair it with RestoreDefaults around
// the same transmit.
func (r *Registry) ApplySettings(channel int, s radio.PhySettings) error {
	port, err := r.portFor(channel)
	if err != nil {
		return err
	}
	if err := port.SetFrequency(s.FrequencyHz); err != nil {
		return err
	}
	if err := port.SetTxPower(s.TxPowerDbm); err != nil {
		return err
	}
	if err := port.SetSpreadingFactor(s.SpreadingFactor); err != nil {
		return err
	}
	if err := port.SetBandwidth(s.BandwidthHz); err != nil {
		return err
	}
	if err := port.SetCodingRate(s.CodingRate); err != nil {
		return err
	}
	if err := port.SetPreamble(s.PreambleLen); err != nil {
		return err
	}
	if err := port.EnableCRC(s.CRCEnabled); err != nil {
		return err
	}
	if err := port.EnableInvertIQ(s.InvertIQ); err != nil {
		return err
	}
	return nil
}

// RestoreDefaults reverts channel to its stored per-channel default
// settings and returns it to continuous receive.
func (r *Registry) RestoreDefaults(channel int) error {
	r.mu.Lock()
	s := r.slots[channel]
	r.mu.Unlock()
	if !s.bound {
		return fmt.Errorf("mac: channel %d not bound", channel)
	}
	if err := s.port.SetDefaultSettings(s.defaults); err != nil {
		return err
	}
	return s.port.EnterContinuousReceive()
}

// Send transmits payload on channel using its currently-applied settings.
func (r *Registry) Send(channel int, payload []byte) error {
	port, err := r.portFor(channel)
	if err != nil {
		return err
	}
	return port.Transmit(payload)
}

// ChannelByFrequency returns the first bound channel whose default
// frequency equals freqHz, or ok=false if none matches (spec §4.2 — the
// scheduler reports TX_FREQ on a miss).
func (r *Registry) ChannelByFrequency(freqHz int64) (channel int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.slots {
		if s.bound && s.defaults.FrequencyHz == freqHz {
			return i, true
		}
	}
	return 0, false
}

// Defaults returns the stored default PhySettings for channel.
func (r *Registry) Defaults(channel int) (radio.PhySettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[channel]
	if !s.bound {
		return radio.PhySettings{}, fmt.Errorf("mac: channel %d not bound", channel)
	}
	return s.defaults, nil
}

func (r *Registry) portFor(channel int) (radio.Port, error) {
	if channel < 0 || channel >= NumChannels {
		return nil, fmt.Errorf("mac: channel %d out of range [0,%d)", channel, NumChannels)
	}
	r.mu.Lock()
	s := r.slots[channel]
	r.mu.Unlock()
	if !s.bound {
		return nil, fmt.Errorf("mac: channel %d not bound", channel)
	}
	return s.port, nil
}
