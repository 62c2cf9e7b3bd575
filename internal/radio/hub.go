package radio

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/go-zeromq/zmq4"

	"github.com/agsys/lorawan-gateway-forwarder/internal/radio/ipc"
)

// HubConfig names the two ZeroMQ endpoints the external concentrator
// daemon exposes, mirroring the teacher's ConcentratordConfig.
type HubConfig struct {
	EventURL   string
	CommandURL string
}

// DefaultHubConfig returns the same loopback IPC endpoints the teacher
// used for its local concentratord instance.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		EventURL:   "ipc:///tmp/concentratord_event",
		CommandURL: "ipc:///tmp/concentratord_command",
	}
}

// ConcentratorHub owns the single SUB/REQ socket pair shared by every
// ConcentratorPort, fanning daemon events out by channel index and
// serializing command-socket round trips (a ZeroMQ REQ socket requires
// strict send/recv alternation). Grounded on the teacher's
// ConcentratordDriver, generalized from one hardcoded channel to the
// 8-slot table internal/mac addresses by index.
type ConcentratorHub struct {
	config HubConfig

	ctx    context.Context
	cancel context.CancelFunc

	eventSock zmq4.Socket
	cmdSock   zmq4.Socket
	cmdMu     sync.Mutex

	mu    sync.Mutex
	ports map[uint8]*ConcentratorPort
	wg    sync.WaitGroup
}

// NewConcentratorHub returns a hub ready to Start.
func NewConcentratorHub(config HubConfig) *ConcentratorHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConcentratorHub{
		config: config,
		ctx:    ctx,
		cancel: cancel,
		ports:  make(map[uint8]*ConcentratorPort),
	}
}

// Start dials both sockets and launches the event loop. It must be called
// once before any ConcentratorPort's Init.
func (h *ConcentratorHub) Start() error {
	h.eventSock = zmq4.NewSub(h.ctx)
	if err := h.eventSock.Dial(h.config.EventURL); err != nil {
		return fmt.Errorf("radio: dial event socket: %w", err)
	}
	if err := h.eventSock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return fmt.Errorf("radio: subscribe event socket: %w", err)
	}

	h.cmdSock = zmq4.NewReq(h.ctx)
	if err := h.cmdSock.Dial(h.config.CommandURL); err != nil {
		h.eventSock.Close()
		return fmt.Errorf("radio: dial command socket: %w", err)
	}

	h.wg.Add(1)
	go h.eventLoop()
	return nil
}

// Stop cancels the event loop and closes both sockets.
func (h *ConcentratorHub) Stop() error {
	h.cancel()
	h.wg.Wait()
	if h.eventSock != nil {
		h.eventSock.Close()
	}
	if h.cmdSock != nil {
		h.cmdSock.Close()
	}
	return nil
}

// register associates a channel index with the port that owns it, called
// from ConcentratorPort.Init.
func (h *ConcentratorHub) register(channel uint8, p *ConcentratorPort) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ports[channel] = p
}

// pushChannelConfig sends a ChannelConfig command, used by
// ConcentratorPort.SetDefaultSettings to push the per-channel default to
// the daemon.
func (h *ConcentratorHub) pushChannelConfig(cfg ipc.ChannelConfig) error {
	data, err := ipc.MarshalChannelConfig(&cfg)
	if err != nil {
		return err
	}
	_, err = h.roundTrip("channel_config", data)
	return err
}

// sendDownlink issues a DownlinkFrame command and returns the daemon's ack.
func (h *ConcentratorHub) sendDownlink(f ipc.DownlinkFrame) (*ipc.DownlinkTxAck, error) {
	data, err := ipc.MarshalDownlinkFrame(&f)
	if err != nil {
		return nil, err
	}
	resp, err := h.roundTrip("down", data)
	if err != nil {
		return nil, err
	}
	return ipc.UnmarshalDownlinkTxAck(resp)
}

// roundTrip performs one serialized REQ send/recv against the command
// socket.
func (h *ConcentratorHub) roundTrip(label string, payload []byte) ([]byte, error) {
	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	msg := zmq4.NewMsgFrom([]byte(label), payload)
	if err := h.cmdSock.Send(msg); err != nil {
		return nil, fmt.Errorf("radio: send %s command: %w", label, err)
	}
	resp, err := h.cmdSock.Recv()
	if err != nil {
		return nil, fmt.Errorf("radio: recv %s response: %w", label, err)
	}
	if len(resp.Frames) == 0 {
		return nil, fmt.Errorf("radio: empty %s response", label)
	}
	return resp.Frames[0], nil
}

// eventLoop drains the event socket, dispatching each UplinkFrame to the
// registered port for its channel and logging each GatewayStats.
func (h *ConcentratorHub) eventLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		default:
		}

		msg, err := h.eventSock.Recv()
		if err != nil {
			if h.ctx.Err() != nil {
				return
			}
			continue
		}
		if len(msg.Frames) < 1 {
			continue
		}

		event, err := ipc.UnmarshalEvent(msg.Frames[0])
		if err != nil {
			log.Printf("radio: malformed event: %v", err)
			continue
		}

		switch {
		case event.UplinkFrame != nil:
			h.dispatchUplink(event.UplinkFrame)
		case event.GatewayStats != nil:
			log.Printf("radio: concentrator stats rx=%d rx_ok=%d tx=%d",
				event.GatewayStats.RxPacketsReceived,
				event.GatewayStats.RxPacketsReceivedOK,
				event.GatewayStats.TxPacketsEmitted)
		}
	}
}

func (h *ConcentratorHub) dispatchUplink(f *ipc.UplinkFrame) {
	h.mu.Lock()
	p, ok := h.ports[f.Channel]
	h.mu.Unlock()
	if !ok {
		return
	}
	p.handleUplink(f)
}
