package radio

import (
	"fmt"
	"sync"

	"github.com/agsys/lorawan-gateway-forwarder/internal/radio/ipc"
)

// ConcentratorPort is the production Port (spec §4.1): one per bound
// channel, all sharing a ConcentratorHub's socket pair. It is the
// Go-idiomatic restatement of the spec's "external collaborator" boundary
// — the real SX130x register access lives in a separate daemon process,
// and this type only speaks the ipc protocol to it, the same role the
// teacher's ConcentratordDriver played for its own chip.
type ConcentratorPort struct {
	hub     *ConcentratorHub
	channel uint8

	mu       sync.Mutex
	settings PhySettings
	rssi     int32
	snr      float64
	handler  EventHandler

	downlinkSeq uint32
}

// NewConcentratorPort returns a port bound to channel on hub. hub.Start
// must already have succeeded.
func NewConcentratorPort(hub *ConcentratorHub, channel uint8) *ConcentratorPort {
	return &ConcentratorPort{hub: hub, channel: channel}
}

func (p *ConcentratorPort) Init() error {
	p.hub.register(p.channel, p)
	return nil
}

func (p *ConcentratorPort) Shutdown() error {
	return nil
}

func (p *ConcentratorPort) SetDefaultSettings(s PhySettings) error {
	p.mu.Lock()
	p.settings = s
	cfg := ipc.ChannelConfig{
		Channel:     p.channel,
		FrequencyHz: s.FrequencyHz,
		SyncWord:    s.SyncWord,
		Modulation: ipc.Modulation{
			SpreadingFactor: s.SpreadingFactor,
			BandwidthHz:     s.BandwidthHz,
			CodeRate:        ipc.CodeRate(s.CodingRate),
			PreambleLen:     s.PreambleLen,
			InvertIQ:        s.InvertIQ,
		},
	}
	p.mu.Unlock()
	return p.hub.pushChannelConfig(cfg)
}

func (p *ConcentratorPort) SetSyncWord(w byte) error {
	p.mu.Lock()
	p.settings.SyncWord = w
	p.mu.Unlock()
	return nil
}

func (p *ConcentratorPort) SetFrequency(hz int64) error {
	p.mu.Lock()
	p.settings.FrequencyHz = hz
	p.mu.Unlock()
	return nil
}

func (p *ConcentratorPort) SetTxPower(dbm int) error {
	p.mu.Lock()
	p.settings.TxPowerDbm = dbm
	p.mu.Unlock()
	return nil
}

func (p *ConcentratorPort) SetSpreadingFactor(sf int) error {
	p.mu.Lock()
	p.settings.SpreadingFactor = sf
	p.mu.Unlock()
	return nil
}

func (p *ConcentratorPort) SetBandwidth(hz int) error {
	p.mu.Lock()
	p.settings.BandwidthHz = hz
	p.mu.Unlock()
	return nil
}

func (p *ConcentratorPort) SetCodingRate(denominator int) error {
	p.mu.Lock()
	p.settings.CodingRate = denominator
	p.mu.Unlock()
	return nil
}

func (p *ConcentratorPort) SetPreamble(length int) error {
	p.mu.Lock()
	p.settings.PreambleLen = length
	p.mu.Unlock()
	return nil
}

func (p *ConcentratorPort) EnableCRC(on bool) error {
	p.mu.Lock()
	p.settings.CRCEnabled = on
	p.mu.Unlock()
	return nil
}

func (p *ConcentratorPort) EnableInvertIQ(on bool) error {
	p.mu.Lock()
	p.settings.InvertIQ = on
	p.mu.Unlock()
	return nil
}

func (p *ConcentratorPort) EnterContinuousReceive() error {
	return nil
}

// Transmit sends payload to the daemon with the port's current settings
// and waits for its synchronous ack, surfacing a non-OK status as an
// error for the MAC Registry/scheduler to report upstream.
func (p *ConcentratorPort) Transmit(payload []byte) error {
	p.mu.Lock()
	p.downlinkSeq++
	seq := p.downlinkSeq
	s := p.settings
	p.mu.Unlock()

	frame := ipc.DownlinkFrame{
		DownlinkID: seq,
		Channel:    p.channel,
		PhyPayload: payload,
		TxInfo: ipc.DownlinkTxInfo{
			FrequencyHz: s.FrequencyHz,
			PowerDbm:    int32(s.TxPowerDbm),
			Modulation: ipc.Modulation{
				SpreadingFactor: s.SpreadingFactor,
				BandwidthHz:     s.BandwidthHz,
				CodeRate:        ipc.CodeRate(s.CodingRate),
				PreambleLen:     s.PreambleLen,
				InvertIQ:        s.InvertIQ,
			},
		},
	}

	ack, err := p.hub.sendDownlink(frame)
	if err != nil {
		return fmt.Errorf("radio: transmit on channel %d: %w", p.channel, err)
	}
	if ack.Status != ipc.TxAckOK {
		return fmt.Errorf("radio: channel %d transmit rejected: %s", p.channel, ack.Status)
	}

	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler != nil {
		handler(PhyEvent{Kind: TransmitCompleted})
	}
	return nil
}

func (p *ConcentratorPort) LastPacketRSSI() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rssi
}

func (p *ConcentratorPort) LastPacketSNR() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snr
}

func (p *ConcentratorPort) OnPhyEvent(h EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// handleUplink is invoked by the owning ConcentratorHub when a daemon
// event names this port's channel.
func (p *ConcentratorPort) handleUplink(f *ipc.UplinkFrame) {
	p.mu.Lock()
	p.rssi = f.RxInfo.Rssi
	p.snr = f.RxInfo.Snr
	handler := p.handler
	p.mu.Unlock()

	if handler == nil {
		return
	}
	if !f.RxInfo.CrcOK {
		handler(PhyEvent{Kind: CrcError})
		return
	}
	handler(PhyEvent{Kind: ReceiveCompleted, Payload: f.PhyPayload, Len: len(f.PhyPayload)})
}
