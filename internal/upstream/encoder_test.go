package upstream

import (
	"testing"

	"github.com/agsys/lorawan-gateway-forwarder/internal/clock"
	"github.com/agsys/lorawan-gateway-forwarder/internal/gwproto"
	"github.com/agsys/lorawan-gateway-forwarder/internal/mac"
)

func TestEncodeUplinkBuildsPushData(t *testing.T) {
	var counters gwproto.Counters
	enc := New(gwproto.GatewayIdentity{EUI: 0x1122334455667788}, &counters, clock.NewSource())

	pkt := mac.RxPacket{
		Channel: 0, FreqMHz: 923.200, CrcOK: true,
		SF: 10, BWkHz: 125, CodingRate: 5,
		RSSI: -80, SNR: 8, Payload: []byte{0xDE, 0xAD, 0xBE, 0xEF}, Size: 4,
	}

	datagram, token, err := enc.EncodeUplink(pkt)
	if err != nil {
		t.Fatalf("EncodeUplink: %v", err)
	}
	h, eui, body, err := gwproto.Split(datagram)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if h.ID != gwproto.PushData || h.Token != token {
		t.Fatalf("got header %+v", h)
	}
	if eui != 0x1122334455667788 {
		t.Fatalf("got eui %x", eui)
	}
	parsed, err := gwproto.ParsePushData(body)
	if err != nil {
		t.Fatalf("ParsePushData: %v", err)
	}
	if len(parsed.RXPK) != 1 {
		t.Fatalf("got %d rxpk entries, want 1", len(parsed.RXPK))
	}
	rxpk := parsed.RXPK[0]
	if rxpk.Datr != "SF10BW125" || rxpk.Codr != "4/5" || rxpk.Data != "3q2+7w==" {
		t.Fatalf("got %+v", rxpk)
	}

	snap := counters.Snapshot()
	if snap.Rxnb != 1 || snap.Rxok != 1 || snap.Rxfw != 1 || snap.Txnb != 1 {
		t.Fatalf("got counters %+v", snap)
	}
}

func TestEncodeUplinkCrcFailureNotForwarded(t *testing.T) {
	var counters gwproto.Counters
	enc := New(gwproto.GatewayIdentity{}, &counters, clock.NewSource())

	pkt := mac.RxPacket{Channel: 0, CrcOK: false}
	if _, _, err := enc.EncodeUplink(pkt); err == nil {
		t.Fatal("expected an error for a CRC-failed packet")
	}

	snap := counters.Snapshot()
	if snap.Rxnb != 1 || snap.Rxok != 0 || snap.Rxfw != 0 {
		t.Fatalf("got counters %+v", snap)
	}
}

func TestRecordNonForwardedCrcFailure(t *testing.T) {
	var counters gwproto.Counters
	enc := New(gwproto.GatewayIdentity{}, &counters, clock.NewSource())

	enc.RecordNonForwarded(mac.RxPacket{Channel: 0, CrcOK: false})

	snap := counters.Snapshot()
	if snap.Rxnb != 1 || snap.Rxok != 0 || snap.Rxfw != 0 {
		t.Fatalf("got counters %+v", snap)
	}
}

func TestRecordNonForwardedTransmitCompletedBumpsRxfw(t *testing.T) {
	var counters gwproto.Counters
	enc := New(gwproto.GatewayIdentity{}, &counters, clock.NewSource())

	enc.RecordNonForwarded(mac.RxPacket{Channel: 0, Completed: true})

	snap := counters.Snapshot()
	if snap.Rxfw != 1 {
		t.Fatalf("got rxfw %d, want 1", snap.Rxfw)
	}
	if snap.Rxnb != 0 || snap.Rxok != 0 {
		t.Fatalf("expected a TransmitCompleted entry to leave rxnb/rxok untouched, got %+v", snap)
	}
}

func TestEncodeStatReflectsLiveAckRatio(t *testing.T) {
	var counters gwproto.Counters
	counters.RecordPushDataSent()
	counters.RecordPushAck()
	counters.RecordPushDataSent()
	counters.RecordPushAck()
	counters.RecordPushDataSent()

	enc := New(gwproto.GatewayIdentity{Platform: "test-gw"}, &counters, clock.NewSource())
	datagram, _, err := enc.EncodeStat()
	if err != nil {
		t.Fatalf("EncodeStat: %v", err)
	}
	_, _, body, err := gwproto.Split(datagram)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	parsed, err := gwproto.ParsePushData(body)
	if err != nil {
		t.Fatalf("ParsePushData: %v", err)
	}
	if parsed.Stat == nil {
		t.Fatal("expected a stat object")
	}
	want := float64(2) / float64(3) * 100
	if parsed.Stat.Ackr != want {
		t.Fatalf("got ackr %v, want %v", parsed.Stat.Ackr, want)
	}
}
