// Package scheduler implements the Downlink Scheduler (spec §4.6): it
// validates a downstream.TxRequest against the regional plan and the
// gateway's own channel table, then holds it until its target internal
// timestamp arrives (or dispatches it immediately), applying PHY settings,
// transmitting, and restoring defaults around the transmit.
package scheduler

import (
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/agsys/lorawan-gateway-forwarder/internal/clock"
	"github.com/agsys/lorawan-gateway-forwarder/internal/downstream"
	"github.com/agsys/lorawan-gateway-forwarder/internal/gwproto"
	"github.com/agsys/lorawan-gateway-forwarder/internal/mac"
	"github.com/agsys/lorawan-gateway-forwarder/internal/radio"
)

// Sentinel validation errors, named after the TX_ACK codes they map to
// (spec §4.6, §7).
var (
	ErrTxFreq   = errors.New("scheduler: frequency outside regional plan")
	ErrTxPower  = errors.New("scheduler: power outside allowed range")
	ErrTooLate  = errors.New("scheduler: modulation invalid, or target timestamp already past tolerance")
	ErrTooEarly = errors.New("scheduler: target timestamp beyond the queue's scheduling horizon")
)

// Config names the regional plan and scheduling tolerances spec §4.6
// validates against.
type Config struct {
	FreqMinHz      int64
	FreqMaxHz      int64
	PowerMinDbm    int
	PowerMaxDbm    int
	PastToleranceUs uint32 // how far in the past a target_tmst may be before TOO_LATE
	HorizonUs      uint32 // how far in the future a target_tmst may be before TOO_EARLY
	QueueLen       int
	PollTimeout    time.Duration
}

// DefaultConfig mirrors the AU915/US915-class plan the original firmware
// shipped with: 2dBm..20dBm, 902.0-928.0 MHz.
func DefaultConfig() Config {
	return Config{
		FreqMinHz:       902000000,
		FreqMaxHz:       928000000,
		PowerMinDbm:     2,
		PowerMaxDbm:     20,
		PastToleranceUs: 1_000_000,
		HorizonUs:       4_000_000_000,
		QueueLen:        16,
		PollTimeout:     20 * time.Millisecond,
	}
}

// ScheduleItem is a validated downlink waiting for its target timestamp
// (spec §3). EnqueuedTmst and TargetDelay together let the scheduler
// apply wrap-around comparison without re-deriving it on every poll.
type ScheduleItem struct {
	Channel      int
	Immediate    bool
	EnqueuedTmst uint32
	TargetDelay  uint32
	Settings     radio.PhySettings
	Payload      []byte
	ServerToken  uint16
}

// Validate checks req against cfg and registry, returning a ScheduleItem
// ready to enqueue plus gwproto.ErrNone on success, or a zero ScheduleItem
// and the TX_ACK error code to report otherwise (spec §4.6 steps 1-4). No
// ScheduleItem is produced on any failure.
func Validate(cfg Config, registry *mac.Registry, req downstream.TxRequest, nowTmst uint32) (ScheduleItem, gwproto.TxAckError, error) {
	freqHz := int64(req.FreqMHz * 1e6)
	if freqHz < cfg.FreqMinHz || freqHz > cfg.FreqMaxHz {
		return ScheduleItem{}, gwproto.ErrTxFreq, ErrTxFreq
	}
	if req.PowerDbm < cfg.PowerMinDbm || req.PowerDbm > cfg.PowerMaxDbm {
		return ScheduleItem{}, gwproto.ErrTxPower, ErrTxPower
	}
	if req.Modulation != "LORA" || req.SF < 7 || req.SF > 12 || req.CodingRate < 5 || req.CodingRate > 8 {
		// Retained from the source firmware's taxonomy: an invalid
		// modulation or out-of-range SF/CR is reported as TOO_LATE even
		// though a dedicated code would be more informative (spec §9).
		return ScheduleItem{}, gwproto.ErrTooLate, ErrTooLate
	}

	channel, ok := registry.ChannelByFrequency(freqHz)
	if !ok {
		return ScheduleItem{}, gwproto.ErrTxFreq, ErrTxFreq
	}

	item := ScheduleItem{
		Channel:      channel,
		Immediate:    req.Immediate,
		EnqueuedTmst: nowTmst,
		Payload:      req.Payload,
		ServerToken:  req.ServerToken,
		Settings: radio.PhySettings{
			FrequencyHz:     freqHz,
			TxPowerDbm:      req.PowerDbm,
			SpreadingFactor: req.SF,
			BandwidthHz:     req.BWHz,
			CodingRate:      req.CodingRate,
			PreambleLen:     req.PreambleLen,
			CRCEnabled:      !req.NoCRC,
			InvertIQ:        req.InvertIQ,
		},
	}

	if !req.Immediate {
		delay := req.TargetTmst - nowTmst // wrap-around: unsigned subtraction mod 2^32
		if delay > cfg.HorizonUs {
			// A target already in the past wraps around to a delay near
			// 2^32; its true distance into the past is the two's
			// complement of delay. Within tolerance of "now" it's
			// TOO_LATE, otherwise it's further out than this queue's
			// horizon can hold, i.e. TOO_EARLY.
			pastDistance := ^delay + 1
			if pastDistance <= cfg.PastToleranceUs {
				return ScheduleItem{}, gwproto.ErrTooLate, ErrTooLate
			}
			return ScheduleItem{}, gwproto.ErrTooEarly, ErrTooEarly
		}
		item.TargetDelay = delay
	}

	return item, gwproto.ErrNone, nil
}

// Scheduler runs the cooperative single-worker dispatch loop spec §4.6
// describes: poll with a short timeout, dispatch immediate items at once,
// and hold not-yet-due timed items in a pending list until their target
// timestamp arrives.
type Scheduler struct {
	cfg      Config
	registry *mac.Registry
	clock    *clock.Source
	queue    chan ScheduleItem
	stopChan chan struct{}

	// recvCount counts how many times Run has taken an item off queue.
	// Exercised by tests to confirm a waiting item is parked in the
	// pending list rather than continuously re-received off the channel.
	recvCount int64

	// OnDispatch, if set, is invoked after every dispatch attempt
	// (successful or not) with the item and the resulting transmit
	// error (nil on success). The eager TX_ACK is sent before enqueue and
	// does not depend on this callback.
	OnDispatch func(ScheduleItem, error)
}

// New returns a Scheduler backed by registry, ready for Run.
func New(cfg Config, registry *mac.Registry, src *clock.Source) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		registry: registry,
		clock:    src,
		queue:    make(chan ScheduleItem, cfg.QueueLen),
		stopChan: make(chan struct{}),
	}
}

// Enqueue places a validated item on the schedule queue.
func (s *Scheduler) Enqueue(item ScheduleItem) {
	select {
	case s.queue <- item:
	default:
		log.Printf("scheduler: scheduleQ full, dropping downlink for channel %d", item.Channel)
		if s.OnDispatch != nil {
			s.OnDispatch(item, errQueueFull)
		}
	}
}

var errQueueFull = errors.New("scheduler: scheduleQ full")

// Stop signals Run to return after its current poll.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// RecvCount reports how many items Run has taken directly off the
// input queue, for test observability.
func (s *Scheduler) RecvCount() int64 {
	return atomic.LoadInt64(&s.recvCount)
}

// Run executes the cooperative dispatch loop until Stop is called. It is
// meant to be the body of exactly one goroutine.
//
// Not-yet-due items are held in an in-process pending list rather than
// re-enqueued onto s.queue: re-enqueuing onto the same channel a select
// is also receiving from races a freshly-armed timer against an
// already-ready channel, and the channel wins every time, tight-looping
// the item until it becomes due. A single timer, reset after each fire
// instead of recreated, is what actually throttles the re-poll cadence.
func (s *Scheduler) Run() {
	var pending []ScheduleItem
	timer := time.NewTimer(s.cfg.PollTimeout)
	defer timer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case item := <-s.queue:
			atomic.AddInt64(&s.recvCount, 1)
			if item.Immediate {
				s.dispatch(item)
			} else {
				pending = append(pending, item)
			}
		case <-timer.C:
			pending = s.pollPending(pending)
			timer.Reset(s.cfg.PollTimeout)
		}
	}
}

// pollPending dispatches every due item in pending and returns the items
// still waiting, preserving their relative order: same-channel items
// transmit in the order they become due, ties break FIFO.
func (s *Scheduler) pollPending(pending []ScheduleItem) []ScheduleItem {
	now := s.clock.NowTmst()
	remaining := pending[:0]
	for _, item := range pending {
		if clock.Due(now, item.EnqueuedTmst, item.TargetDelay) {
			s.dispatch(item)
		} else {
			remaining = append(remaining, item)
		}
	}
	return remaining
}

func (s *Scheduler) dispatch(item ScheduleItem) {
	err := s.transmit(item)
	if s.OnDispatch != nil {
		s.OnDispatch(item, err)
	}
}

func (s *Scheduler) transmit(item ScheduleItem) error {
	if err := s.registry.ApplySettings(item.Channel, item.Settings); err != nil {
		return err
	}
	sendErr := s.registry.Send(item.Channel, item.Payload)
	if err := s.registry.RestoreDefaults(item.Channel); err != nil {
		log.Printf("scheduler: restore defaults on channel %d: %v", item.Channel, err)
	}
	return sendErr
}
