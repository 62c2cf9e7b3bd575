// Package session implements the Session Driver (spec §4.5): it owns the
// UDP socket to the Network Server, serializes writes through a dedicated
// send goroutine, dispatches received datagrams by header identifier, and
// retries the initial connection with exponential backoff and jitter
// (ConnectWithRetry). A non-timeout read error on an established socket
// marks the driver disconnected and ends its receive loop; no reconnect
// is attempted after that.
package session

import (
	"fmt"
	"log"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/agsys/lorawan-gateway-forwarder/internal/gwproto"
)

// Config names the reconnect tuning parameters, generalized from the
// teacher's GRPCClient.Config (InitialRetryDelay/MaxRetryDelay/
// BackoffMultiplier/JitterPercent) from a gRPC dial to a UDP
// resolve-and-dial pair.
type Config struct {
	Endpoint            gwproto.ServerEndpoint
	GatewayEUI          uint64
	InitialRetryDelay   time.Duration
	MaxRetryDelay       time.Duration
	BackoffMultiplier   float64
	JitterPercent       float64
	SendQueueLen        int
}

// DefaultConfig mirrors the teacher's GRPCClient defaults.
func DefaultConfig() Config {
	return Config{
		InitialRetryDelay: time.Second,
		MaxRetryDelay:     time.Minute,
		BackoffMultiplier: 2.0,
		JitterPercent:     0.2,
		SendQueueLen:      64,
	}
}

// EventKind tags the dispatch events RegisterEventHandler receives (spec
// §4.5's header-byte dispatch table).
type EventKind int

const (
	EventPushAck EventKind = iota
	EventPullAck
	EventPullResp
)

// Event is delivered to the registered handler for every inbound datagram
// the driver recognizes. Body and Token are only meaningful for
// EventPullResp.
type Event struct {
	Kind  EventKind
	Token uint16
	Body  []byte
}

// EventHandler processes one dispatched Event. It must not block for long;
// the driver calls it synchronously from its receive goroutine.
type EventHandler func(Event)

// Driver owns one UDP socket connected to the Network Server (spec §4.5).
// Its send-goroutine/sendChan shape mirrors the teacher's cloud.Client
// send loop; its reconnect loop mirrors cloud.GRPCClient.ConnectWithRetry.
type Driver struct {
	config Config

	mu                sync.Mutex
	conn              *net.UDPConn
	connected         bool
	currentRetryDelay time.Duration
	pendingToken      uint16
	hasPendingToken   bool

	sendChan chan []byte
	stopChan chan struct{}
	wg       sync.WaitGroup

	handler EventHandler
}

// New returns a Driver ready for Connect.
func New(config Config) *Driver {
	return &Driver{
		config:            config,
		currentRetryDelay: config.InitialRetryDelay,
		sendChan:          make(chan []byte, config.SendQueueLen),
		stopChan:          make(chan struct{}),
	}
}

// RegisterEventHandler installs the callback for dispatched datagrams.
func (d *Driver) RegisterEventHandler(h EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// Connect resolves the server hostname and dials a UDP socket to it. The
// hostname is re-resolved on every call — including every reconnect
// attempt — rather than cached, restating the original firmware's
// behavior of re-resolving both the NS host and the NTP host on each
// connection attempt.
func (d *Driver) Connect() error {
	addr, err := net.ResolveUDPAddr("udp", d.config.Endpoint.Addr())
	if err != nil {
		return fmt.Errorf("session: resolve %s: %w", d.config.Endpoint.Addr(), err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("session: dial %s: %w", addr, err)
	}

	d.mu.Lock()
	d.conn = conn
	d.connected = true
	d.currentRetryDelay = d.config.InitialRetryDelay
	d.mu.Unlock()

	d.wg.Add(2)
	go d.sendLoop()
	go d.receiveLoop()
	return nil
}

// ConnectWithRetry retries Connect with exponential backoff and jitter
// until it succeeds or Stop is called, the direct generalization of the
// teacher's GRPCClient.ConnectWithRetry.
func (d *Driver) ConnectWithRetry() {
	for {
		select {
		case <-d.stopChan:
			return
		default:
		}

		if err := d.Connect(); err == nil {
			return
		} else {
			log.Printf("session: connect failed: %v, retrying in %v", err, d.currentRetryDelay)
		}

		jitter := time.Duration(float64(d.currentRetryDelay) * d.config.JitterPercent * (rand.Float64()*2 - 1))
		sleep := d.currentRetryDelay + jitter
		select {
		case <-d.stopChan:
			return
		case <-time.After(sleep):
		}

		d.currentRetryDelay = time.Duration(float64(d.currentRetryDelay) * d.config.BackoffMultiplier)
		if d.currentRetryDelay > d.config.MaxRetryDelay {
			d.currentRetryDelay = d.config.MaxRetryDelay
		}
	}
}

// Connected reports whether the socket is currently up.
func (d *Driver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Disconnect closes the socket and stops both loops. Pending datagrams
// already queued on sendChan are not guaranteed to be flushed; the
// supervisor is responsible for draining higher-level queues first (spec
// §4.5).
func (d *Driver) Disconnect() {
	close(d.stopChan)
	d.mu.Lock()
	conn := d.conn
	d.connected = false
	d.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	d.wg.Wait()
}

// Send queues a complete datagram (already encoded by gwproto) for the
// send goroutine. It does not block the caller on socket I/O.
func (d *Driver) Send(datagram []byte) {
	select {
	case d.sendChan <- datagram:
	default:
		log.Printf("session: send queue full, dropping datagram")
	}
}

// SendTxAck builds and sends a TX_ACK using the last-remembered PULL_RESP
// token, never a fresh one (spec §4.5).
func (d *Driver) SendTxAck(errCode gwproto.TxAckError) error {
	d.mu.Lock()
	if !d.hasPendingToken {
		d.mu.Unlock()
		return fmt.Errorf("session: no pending PULL_RESP token to ack")
	}
	token := d.pendingToken
	d.mu.Unlock()

	datagram, err := gwproto.BuildTxAck(token, d.config.GatewayEUI, errCode)
	if err != nil {
		return err
	}
	d.Send(datagram)
	return nil
}

func (d *Driver) sendLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopChan:
			return
		case datagram := <-d.sendChan:
			d.mu.Lock()
			conn := d.conn
			d.mu.Unlock()
			if conn == nil {
				continue
			}
			if _, err := conn.Write(datagram); err != nil {
				log.Printf("session: write failed: %v", err)
			}
		}
	}
}

func (d *Driver) receiveLoop() {
	defer d.wg.Done()
	buf := make([]byte, 65536)
	for {
		select {
		case <-d.stopChan:
			return
		default:
		}

		d.mu.Lock()
		conn := d.conn
		d.mu.Unlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			d.mu.Lock()
			d.connected = false
			d.mu.Unlock()
			return
		}

		d.dispatch(buf[:n])
	}
}

// dispatch implements the header-byte table from spec §4.5.
func (d *Driver) dispatch(datagram []byte) {
	header, _, body, err := gwproto.Split(datagram)
	if err != nil {
		log.Printf("session: malformed datagram: %v", err)
		return
	}

	d.mu.Lock()
	handler := d.handler
	d.mu.Unlock()

	switch header.ID {
	case gwproto.PushAck:
		if handler != nil {
			handler(Event{Kind: EventPushAck, Token: header.Token})
		}
	case gwproto.PullAck:
		if handler != nil {
			handler(Event{Kind: EventPullAck, Token: header.Token})
		}
	case gwproto.PullResp:
		d.mu.Lock()
		d.pendingToken = header.Token
		d.hasPendingToken = true
		d.mu.Unlock()
		if handler != nil {
			handler(Event{Kind: EventPullResp, Token: header.Token, Body: body})
		}
	case gwproto.TxAck:
		// Not expected server->gateway; ignore (spec §4.5).
	default:
		// Unknown identifier; ignore.
	}
}
