package radio

import (
	"fmt"
	"sync"
)

// SoftPort is the pure-software fake spec §4.1 requires for driving
// internal/mac without a chip: tests call Inject* to synthesize PhyEvents
// and inspect TxLog to assert what was transmitted, instead of wiring a
// real concentrator daemon. Its field layout mirrors the teacher's
// Driver (config/mu/running) rather than introducing new shapes.
type SoftPort struct {
	mu       sync.Mutex
	running  bool
	settings PhySettings
	rssi     int32
	snr      float64
	handler  EventHandler

	// TxLog records every payload Transmit was called with, in order.
	TxLog [][]byte

	// FailInit, when set, makes Init return this error instead of
	// succeeding, letting tests exercise the MAC Registry's
	// refuse-to-bind path.
	FailInit error
}

// NewSoftPort returns a SoftPort ready for Init.
func NewSoftPort() *SoftPort {
	return &SoftPort{}
}

func (p *SoftPort) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailInit != nil {
		return p.FailInit
	}
	p.running = true
	return nil
}

func (p *SoftPort) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	return nil
}

func (p *SoftPort) SetDefaultSettings(s PhySettings) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = s
	return nil
}

func (p *SoftPort) SetSyncWord(w byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.SyncWord = w
	return nil
}

func (p *SoftPort) SetFrequency(hz int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.FrequencyHz = hz
	return nil
}

func (p *SoftPort) SetTxPower(dbm int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.TxPowerDbm = dbm
	return nil
}

func (p *SoftPort) SetSpreadingFactor(sf int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.SpreadingFactor = sf
	return nil
}

func (p *SoftPort) SetBandwidth(hz int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.BandwidthHz = hz
	return nil
}

func (p *SoftPort) SetCodingRate(denominator int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.CodingRate = denominator
	return nil
}

func (p *SoftPort) SetPreamble(length int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.PreambleLen = length
	return nil
}

func (p *SoftPort) EnableCRC(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.CRCEnabled = on
	return nil
}

func (p *SoftPort) EnableInvertIQ(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.InvertIQ = on
	return nil
}

func (p *SoftPort) EnterContinuousReceive() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return fmt.Errorf("radio: port not initialized")
	}
	return nil
}

// Transmit records payload in TxLog and synchronously reports
// TransmitCompleted, matching the real concentrator's behavior of
// returning to continuous receive once a transmit finishes (spec §4.1).
func (p *SoftPort) Transmit(payload []byte) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("radio: port not initialized")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	p.TxLog = append(p.TxLog, cp)
	handler := p.handler
	p.mu.Unlock()

	if handler != nil {
		handler(PhyEvent{Kind: TransmitCompleted})
	}
	return nil
}

func (p *SoftPort) LastPacketRSSI() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rssi
}

func (p *SoftPort) LastPacketSNR() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snr
}

func (p *SoftPort) OnPhyEvent(h EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// InjectReceive synthesizes a ReceiveCompleted event carrying payload, as
// if the chip had just signaled a valid frame, after recording rssi/snr so
// LastPacketRSSI/LastPacketSNR reflect it.
func (p *SoftPort) InjectReceive(payload []byte, rssi int32, snr float64) {
	p.mu.Lock()
	p.rssi = rssi
	p.snr = snr
	handler := p.handler
	p.mu.Unlock()

	if handler != nil {
		handler(PhyEvent{Kind: ReceiveCompleted, Payload: payload, Len: len(payload)})
	}
}

// InjectCrcError synthesizes a CrcError event with no buffered payload.
func (p *SoftPort) InjectCrcError() {
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()

	if handler != nil {
		handler(PhyEvent{Kind: CrcError})
	}
}

// Settings returns the port's current PhySettings, for test assertions.
func (p *SoftPort) Settings() PhySettings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}
