// Package forwarder implements the Supervisor (spec §4.7, here named
// Engine to avoid colliding with "supervisor" as a term of art): it wires
// the MAC Registry, encoder, session driver and scheduler together and
// starts/stops four long-running workers (status emitter, keep-alive
// emitter, uplink forwarder, scheduler). PULL_RESP handling runs on the
// session driver's receive goroutine through the registered event handler.
// Only the initial connection is retried; a transport lost after that is
// not reconnected. Structurally
// the direct descendant of the teacher's internal/engine.Engine: same
// Start(ctx)/Stop() shape, same stopChan+sync.WaitGroup bookkeeping.
package forwarder

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agsys/lorawan-gateway-forwarder/internal/clock"
	"github.com/agsys/lorawan-gateway-forwarder/internal/downstream"
	"github.com/agsys/lorawan-gateway-forwarder/internal/gwproto"
	"github.com/agsys/lorawan-gateway-forwarder/internal/mac"
	"github.com/agsys/lorawan-gateway-forwarder/internal/scheduler"
	"github.com/agsys/lorawan-gateway-forwarder/internal/session"
	"github.com/agsys/lorawan-gateway-forwarder/internal/upstream"
)

// Config wires together every component Engine owns.
type Config struct {
	Identity          gwproto.GatewayIdentity
	RxQueueLen        int
	StatInterval      time.Duration
	KeepaliveInterval time.Duration
	Session           session.Config
	Scheduler         scheduler.Config
}

// DefaultConfig mirrors the original firmware's default cadence: a 60s
// stat interval and a 15s keep-alive interval.
func DefaultConfig() Config {
	return Config{
		RxQueueLen:        256,
		StatInterval:      60 * time.Second,
		KeepaliveInterval: 15 * time.Second,
		Session:           session.DefaultConfig(),
		Scheduler:         scheduler.DefaultConfig(),
	}
}

// AuditSink and MonitorSink are the narrow interfaces internal/audit and
// internal/monitor satisfy; Engine depends on these rather than importing
// either package directly, so it can run with neither wired in.
type AuditSink interface {
	RecordUplink(channel int, crcOK bool, size int)
	RecordDownlink(channel int, errCode gwproto.TxAckError)
	RecordStat(snap gwproto.Snapshot)
}

type MonitorSink interface {
	BroadcastUplink(channel int, rssi int32, snr float64, size int)
	BroadcastDownlink(channel int, errCode gwproto.TxAckError)
	BroadcastStat(snap gwproto.Snapshot)
}

// Engine is the Supervisor: it owns the MAC Registry, the upstream
// Encoder, the Session Driver, and the Scheduler, and runs the worker
// topology spec §2/§5 describes.
type Engine struct {
	config Config
	id     uuid.UUID

	registry *mac.Registry
	counters *gwproto.Counters
	encoder  *upstream.Encoder
	driver   *session.Driver
	sched    *scheduler.Scheduler
	clock    *clock.Source

	audit   AuditSink
	monitor MonitorSink

	mu        sync.Mutex
	startedAt time.Time
	suspended bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New wires every component together. Channels must already be bound to
// registry by the caller (internal/radio port construction is
// deployment-specific: SoftPort for tests, ConcentratorPort in
// production) before Start is called.
func New(cfg Config, registry *mac.Registry) *Engine {
	cfg.Session.GatewayEUI = cfg.Identity.EUI
	src := clock.NewSource()
	counters := &gwproto.Counters{}
	return &Engine{
		config:   cfg,
		id:       uuid.New(),
		registry: registry,
		counters: counters,
		encoder:  upstream.New(cfg.Identity, counters, src),
		driver:   session.New(cfg.Session),
		sched:    scheduler.New(cfg.Scheduler, registry, src),
		clock:    src,
		stopChan: make(chan struct{}),
	}
}

// SetAuditSink wires an optional ambient forwarding log.
func (e *Engine) SetAuditSink(a AuditSink) { e.audit = a }

// SetMonitorSink wires an optional ambient dashboard hub.
func (e *Engine) SetMonitorSink(m MonitorSink) { e.monitor = m }

// ID is this Engine instance's correlation ID, surfaced in Snapshot.
func (e *Engine) ID() uuid.UUID { return e.id }

// Start connects the session, wires dispatch, and launches all workers.
// It returns once the initial connection attempt (with retry) succeeds or
// ctx is canceled first.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	e.startedAt = time.Now()
	e.mu.Unlock()

	e.driver.RegisterEventHandler(e.handleSessionEvent)
	e.sched.OnDispatch = e.handleDispatch

	connected := make(chan struct{})
	go func() {
		e.driver.ConnectWithRetry()
		close(connected)
	}()
	select {
	case <-connected:
	case <-ctx.Done():
		return ctx.Err()
	}

	e.wg.Add(4)
	go e.runScheduler()
	go e.uplinkWorker(ctx)
	go e.statusEmitter(ctx)
	go e.keepAliveEmitter(ctx)

	return nil
}

// Stop signals every worker to exit and waits for them, then disconnects
// the session. Counters are never reset here. Stop closes the Engine's,
// the scheduler's and the driver's stop channels for good, so an Engine
// cannot be started again after Stop.
func (e *Engine) Stop() {
	close(e.stopChan)
	e.sched.Stop()
	e.wg.Wait()
	e.driver.Disconnect()
}

// Snapshot is a read-only view of Engine's health: instance ID, uptime,
// connection state and counters. No HTTP endpoint or CLI command in this
// module exposes it.
type Snapshot struct {
	InstanceID uuid.UUID
	Uptime     time.Duration
	Connected  bool
	Counters   gwproto.Snapshot
}

// Snapshot reads the current counters and connection state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	started := e.startedAt
	e.mu.Unlock()
	return Snapshot{
		InstanceID: e.id,
		Uptime:     time.Since(started),
		Connected:  e.driver.Connected(),
		Counters:   e.counters.Snapshot(),
	}
}

func (e *Engine) runScheduler() {
	defer e.wg.Done()
	e.sched.Run()
}

// uplinkWorker drains the MAC Registry's rx queue, encoding and
// forwarding every successfully-CRC'd packet and accounting for the rest.
func (e *Engine) uplinkWorker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case pkt := <-e.registry.RxQueue():
			e.handleRxPacket(pkt)
		}
	}
}

func (e *Engine) handleRxPacket(pkt mac.RxPacket) {
	if pkt.Completed || !pkt.CrcOK {
		e.encoder.RecordNonForwarded(pkt)
		if e.audit != nil && !pkt.Completed {
			e.audit.RecordUplink(pkt.Channel, false, 0)
		}
		if e.monitor != nil && !pkt.Completed {
			e.monitor.BroadcastUplink(pkt.Channel, pkt.RSSI, pkt.SNR, 0)
		}
		return
	}

	datagram, _, err := e.encoder.EncodeUplink(pkt)
	if err != nil {
		log.Printf("forwarder: encode uplink: %v", err)
		return
	}
	e.driver.Send(datagram)

	if e.audit != nil {
		e.audit.RecordUplink(pkt.Channel, pkt.CrcOK, pkt.Size)
	}
	if e.monitor != nil {
		e.monitor.BroadcastUplink(pkt.Channel, pkt.RSSI, pkt.SNR, pkt.Size)
	}
}

func (e *Engine) statusEmitter(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.config.StatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			datagram, _, err := e.encoder.EncodeStat()
			if err != nil {
				log.Printf("forwarder: encode stat: %v", err)
				continue
			}
			e.driver.Send(datagram)
			snap := e.counters.Snapshot()
			if e.audit != nil {
				e.audit.RecordStat(snap)
			}
			if e.monitor != nil {
				e.monitor.BroadcastStat(snap)
			}
		}
	}
}

func (e *Engine) keepAliveEmitter(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.config.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.driver.Send(gwproto.BuildPullData(gwproto.NewToken(), e.config.Identity.EUI))
		}
	}
}

// handleSessionEvent implements the downlink worker's dispatch (spec
// §4.5/§4.6): PUSH_ACK updates ackn, PULL_ACK is ignored, PULL_RESP is decoded,
// validated, eagerly acked, and (on success) scheduled.
func (e *Engine) handleSessionEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventPushAck:
		e.counters.RecordPushAck()
	case session.EventPullAck:
		// No counter tracks PULL_ACK directly; it only confirms the
		// keep-alive reached the server.
	case session.EventPullResp:
		e.counters.RecordPullResp()
		e.handlePullResp(ev.Token, ev.Body)
	}
}

func (e *Engine) handlePullResp(token uint16, body []byte) {
	req, err := downstream.Decode(body, token)
	if err != nil {
		log.Printf("forwarder: decode PULL_RESP: %v", err)
		return
	}

	item, ackCode, verr := scheduler.Validate(e.config.Scheduler, e.registry, req, e.clock.NowTmst())

	// Eager TX_ACK: sent as soon as validation completes, before the
	// scheduled transmit actually runs (spec §9 open question 2).
	if err := e.driver.SendTxAck(ackCode); err != nil {
		log.Printf("forwarder: send TX_ACK: %v", err)
	}
	if e.audit != nil {
		e.audit.RecordDownlink(item.Channel, ackCode)
	}
	if e.monitor != nil {
		e.monitor.BroadcastDownlink(item.Channel, ackCode)
	}

	if verr != nil {
		return
	}
	e.sched.Enqueue(item)
}

// handleDispatch is the scheduler's completion callback; it logs a failed
// physical transmit and reports a successful one to the monitor sink. The
// eager TX_ACK has already been sent by then.
func (e *Engine) handleDispatch(item scheduler.ScheduleItem, err error) {
	if err != nil {
		log.Printf("forwarder: transmit on channel %d failed: %v", item.Channel, err)
		return
	}
	if e.monitor != nil {
		e.monitor.BroadcastDownlink(item.Channel, gwproto.ErrNone)
	}
}
