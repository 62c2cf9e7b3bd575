package mac

import (
	"testing"

	"github.com/agsys/lorawan-gateway-forwarder/internal/radio"
)

func defaultSettings(freqHz int64) radio.PhySettings {
	return radio.PhySettings{
		FrequencyHz:     freqHz,
		TxPowerDbm:      14,
		SpreadingFactor: 10,
		BandwidthHz:     125000,
		CodingRate:      5,
		PreambleLen:     8,
		CRCEnabled:      true,
	}
}

func TestBindRejectsDuplicateFrequency(t *testing.T) {
	r := New(16)
	p0 := radio.NewSoftPort()
	p1 := radio.NewSoftPort()

	if err := r.Bind(0, p0, defaultSettings(923200000)); err != nil {
		t.Fatalf("Bind channel 0: %v", err)
	}
	if err := r.Bind(1, p1, defaultSettings(923200000)); err == nil {
		t.Fatal("expected duplicate-frequency bind to fail")
	}
}

func TestBindFailsWhenPortInitFails(t *testing.T) {
	r := New(16)
	p := radio.NewSoftPort()
	p.FailInit = errBindFailure

	if err := r.Bind(0, p, defaultSettings(923200000)); err == nil {
		t.Fatal("expected Bind to fail when port Init fails")
	}
	if _, ok := r.ChannelByFrequency(923200000); ok {
		t.Fatal("channel must not be considered bound after a failed Init")
	}
}

func TestReceiveCompletedEnqueuesRxPacket(t *testing.T) {
	r := New(16)
	p := radio.NewSoftPort()
	if err := r.Bind(0, p, defaultSettings(923200000)); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	p.InjectReceive([]byte{0xDE, 0xAD, 0xBE, 0xEF}, -80, 8)

	select {
	case pkt := <-r.RxQueue():
		if !pkt.CrcOK || pkt.Size != 4 || pkt.Channel != 0 {
			t.Fatalf("got %+v", pkt)
		}
	default:
		t.Fatal("expected a packet on rxQ")
	}
}

func TestCrcErrorEnqueuesAccountingEntry(t *testing.T) {
	r := New(16)
	p := radio.NewSoftPort()
	_ = r.Bind(0, p, defaultSettings(923200000))

	p.InjectCrcError()

	select {
	case pkt := <-r.RxQueue():
		if pkt.CrcOK || pkt.Payload != nil {
			t.Fatalf("got %+v, want crc-failed entry with nil payload", pkt)
		}
	default:
		t.Fatal("expected an accounting entry on rxQ")
	}
}

func TestRxQueueDropsNewestWhenFull(t *testing.T) {
	r := New(1)
	p := radio.NewSoftPort()
	_ = r.Bind(0, p, defaultSettings(923200000))

	p.InjectReceive([]byte{1}, 0, 0)
	p.InjectReceive([]byte{2}, 0, 0) // queue full, must be dropped silently

	pkt := <-r.RxQueue()
	if len(pkt.Payload) != 1 || pkt.Payload[0] != 1 {
		t.Fatalf("expected the first packet to survive, got %+v", pkt)
	}
	select {
	case extra := <-r.RxQueue():
		t.Fatalf("expected no second packet, got %+v", extra)
	default:
	}
}

func TestApplyAndRestoreDefaults(t *testing.T) {
	r := New(16)
	p := radio.NewSoftPort()
	defaults := defaultSettings(923200000)
	_ = r.Bind(0, p, defaults)

	override := radio.PhySettings{FrequencyHz: 923400000, TxPowerDbm: 20, SpreadingFactor: 7, BandwidthHz: 125000, CodingRate: 5}
	if err := r.ApplySettings(0, override); err != nil {
		t.Fatalf("ApplySettings: %v", err)
	}
	if got := p.Settings(); got.FrequencyHz != 923400000 || got.TxPowerDbm != 20 {
		t.Fatalf("override not applied: %+v", got)
	}

	if err := r.RestoreDefaults(0); err != nil {
		t.Fatalf("RestoreDefaults: %v", err)
	}
	if got := p.Settings(); got.FrequencyHz != defaults.FrequencyHz || got.TxPowerDbm != defaults.TxPowerDbm {
		t.Fatalf("defaults not restored: %+v", got)
	}
}

func TestChannelByFrequencyMiss(t *testing.T) {
	r := New(16)
	p := radio.NewSoftPort()
	_ = r.Bind(0, p, defaultSettings(923200000))

	if _, ok := r.ChannelByFrequency(868100000); ok {
		t.Fatal("expected no match for an unbound frequency")
	}
	if ch, ok := r.ChannelByFrequency(923200000); !ok || ch != 0 {
		t.Fatalf("got channel=%d ok=%v, want 0/true", ch, ok)
	}
}

func TestSendTransmitsOnChannel(t *testing.T) {
	r := New(16)
	p := radio.NewSoftPort()
	_ = r.Bind(0, p, defaultSettings(923200000))

	if err := r.Send(0, []byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(p.TxLog) != 1 {
		t.Fatalf("expected one transmit, got %d", len(p.TxLog))
	}
}

var errBindFailure = fakeErr("chip version mismatch")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
