// Package upstream implements the Upstream Encoder (spec §4.3): it turns
// mac.RxPacket values and periodic status snapshots into PUSH_DATA
// datagrams, drawing a fresh token for each one and keeping
// gwproto.Counters current.
package upstream

import (
	"fmt"

	"github.com/agsys/lorawan-gateway-forwarder/internal/clock"
	"github.com/agsys/lorawan-gateway-forwarder/internal/gwproto"
	"github.com/agsys/lorawan-gateway-forwarder/internal/mac"
)

// Encoder builds PUSH_DATA datagrams on behalf of one gateway identity and
// maintains its upstream Counters.
type Encoder struct {
	identity gwproto.GatewayIdentity
	counters *gwproto.Counters
	clock    *clock.Source
}

// New returns an Encoder for identity, updating counters as datagrams are
// built.
func New(identity gwproto.GatewayIdentity, counters *gwproto.Counters, src *clock.Source) *Encoder {
	return &Encoder{identity: identity, counters: counters, clock: src}
}

// EncodeUplink builds an rxpk-only PUSH_DATA from one received packet,
// recording the attempt (and, on CRC success, forwarding it) in Counters.
// CRC-failed or transmit-accounting entries produce no datagram; the
// caller should skip calling EncodeUplink for those and call
// RecordNonForwarded instead.
func (e *Encoder) EncodeUplink(pkt mac.RxPacket) ([]byte, uint16, error) {
	e.counters.RecordReceived(pkt.CrcOK)
	if !pkt.CrcOK {
		return nil, 0, fmt.Errorf("upstream: packet on channel %d failed CRC, not forwarded", pkt.Channel)
	}

	now := clock.UTCNow()
	rxpk := gwproto.RXPK{
		Chan: uint8(pkt.Channel),
		Rfch: uint8(pkt.RFChain),
		Freq: pkt.FreqMHz,
		Stat: 1,
		Modu: "LORA",
		Datr: gwproto.FormatDatr(pkt.SF, pkt.BWkHz*1000),
		Codr: gwproto.FormatCodr(pkt.CodingRate),
		Rssi: pkt.RSSI,
		Lsnr: pkt.SNR,
		Size: uint32(pkt.Size),
		Data: gwproto.EncodeData(pkt.Payload),
		Tmst: e.clock.NowTmst(),
		Time: clock.ISO8601Compact(now),
		Tmms: clock.GPSMillis(now),
	}

	token := gwproto.NewToken()
	datagram, err := gwproto.BuildPushData(token, e.identity.EUI, []gwproto.RXPK{rxpk}, nil)
	if err != nil {
		return nil, 0, err
	}
	e.counters.RecordForwarded()
	e.counters.RecordPushDataSent()
	return datagram, token, nil
}

// RecordNonForwarded accounts for a packet that produces no PUSH_DATA
// datagram of its own: a CRC failure is tallied against rxnb/rxok, while a
// TransmitCompleted bookkeeping entry bumps rxfw directly, since the
// scheduler's own transmit is what made it "forwarded" rather than an
// uplink datagram built here.
func (e *Encoder) RecordNonForwarded(pkt mac.RxPacket) {
	if pkt.Completed {
		e.counters.RecordForwarded()
		return
	}
	e.counters.RecordReceived(pkt.CrcOK)
}

// EncodeStat builds a stat-only PUSH_DATA summarizing the gateway's
// current counters, emitted by the status-emitter worker on its interval.
func (e *Encoder) EncodeStat() ([]byte, uint16, error) {
	snap := e.counters.Snapshot()
	stat := &gwproto.Stat{
		Time: clock.ISO8601Expanded(clock.UTCNow()),
		Lati: e.identity.Latitude,
		Long: e.identity.Longitude,
		Alti: e.identity.Altitude,
		Rxnb: snap.Rxnb,
		Rxok: snap.Rxok,
		Rxfw: snap.Rxfw,
		Ackr: snap.Ackr * 100,
		Dwnb: snap.Dwnb,
		Txnb: snap.Txnb,
		Pfrm: e.identity.Platform,
		Mail: e.identity.Contact,
		Desc: e.identity.Description,
	}
	token := gwproto.NewToken()
	datagram, err := gwproto.BuildPushData(token, e.identity.EUI, nil, stat)
	if err != nil {
		return nil, 0, err
	}
	e.counters.RecordPushDataSent()
	return datagram, token, nil
}
