package gwproto

import "sync/atomic"

// Counters tracks the running totals that feed a Stat datagram (spec §3,
// §6). All fields are accessed through atomic ops since uplink accounting,
// downlink accounting, and the periodic status emitter run on different
// goroutines. ackr is never cached: AckRatio/Snapshot always recompute it
// from the live ackn/txnb pair, per spec §9's resolution of that open
// question. txnb/ackn track the PUSH_DATA/PUSH_ACK handshake, not downlink
// transmit success — spec §3's invariant ("every successful upstream
// datagram increments txnb; every PUSH_ACK received increments ackn")
// binds them to the uplink path, independent of the scheduler.
type Counters struct {
	rxnb atomic.Uint32 // radio packets received, CRC or not
	rxok atomic.Uint32 // radio packets received with a valid CRC
	rxfw atomic.Uint32 // packets forwarded to the network server
	dwnb atomic.Uint32 // PULL_RESP datagrams received from the server
	txnb atomic.Uint32 // PUSH_DATA datagrams sent
	ackn atomic.Uint32 // PUSH_ACK datagrams received
}

// RecordReceived increments rxnb and, when crcOK, rxok.
func (c *Counters) RecordReceived(crcOK bool) {
	c.rxnb.Add(1)
	if crcOK {
		c.rxok.Add(1)
	}
}

// RecordForwarded increments rxfw, counting one uplink packet forwarded
// upstream in a PUSH_DATA.
func (c *Counters) RecordForwarded() {
	c.rxfw.Add(1)
}

// RecordPullResp increments dwnb, counting one PULL_RESP received from the
// server regardless of whether it is ultimately transmitted.
func (c *Counters) RecordPullResp() {
	c.dwnb.Add(1)
}

// RecordPushDataSent increments txnb, counting one PUSH_DATA datagram
// (rxpk and/or stat) successfully handed to the socket.
func (c *Counters) RecordPushDataSent() {
	c.txnb.Add(1)
}

// RecordPushAck increments ackn, counting one PUSH_ACK received from the
// server. ackn never exceeds txnb (spec §3 invariant).
func (c *Counters) RecordPushAck() {
	for {
		n := c.ackn.Load()
		if n >= c.txnb.Load() {
			return
		}
		if c.ackn.CompareAndSwap(n, n+1) {
			return
		}
	}
}

// Snapshot is an immutable read of every counter at one instant, plus the
// ack ratio derived from it.
type Snapshot struct {
	Rxnb uint32
	Rxok uint32
	Rxfw uint32
	Dwnb uint32
	Txnb uint32
	Ackn uint32
	Ackr float64
}

// Snapshot reads all counters and computes Ackr in one pass. The read is
// not atomic across fields — spec §3 only requires each field be
// internally consistent, not a single consistent cross-field snapshot.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		Rxnb: c.rxnb.Load(),
		Rxok: c.rxok.Load(),
		Rxfw: c.rxfw.Load(),
		Dwnb: c.dwnb.Load(),
		Txnb: c.txnb.Load(),
		Ackn: c.ackn.Load(),
	}
	s.Ackr = ackRatio(s.Ackn, s.Txnb)
	return s
}

// AckRatio recomputes ackn/txnb directly from the live atomics, the same
// "never cache it" discipline spec §9 and §4.3 call for: every read
// reflects the counters at that instant, not a value stashed at the last
// Stat emission.
func (c *Counters) AckRatio() float64 {
	return ackRatio(c.ackn.Load(), c.txnb.Load())
}

// ackRatio computes ackn/txnb as a fraction in [0,1], defined as 0 when no
// PUSH_DATA has been sent yet (spec §3 note on ackr with txnb==0).
func ackRatio(ackn, txnb uint32) float64 {
	if txnb == 0 {
		return 0
	}
	return float64(ackn) / float64(txnb)
}
