package forwarder

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/agsys/lorawan-gateway-forwarder/internal/gwproto"
	"github.com/agsys/lorawan-gateway-forwarder/internal/mac"
	"github.com/agsys/lorawan-gateway-forwarder/internal/radio"
)

// fakeAuditSink is a minimal in-memory AuditSink recording every call it
// receives, used to confirm the Supervisor actually drives the interface
// rather than leaving a wired sink permanently unexercised.
type fakeAuditSink struct {
	mu    sync.Mutex
	stats []gwproto.Snapshot
}

func (f *fakeAuditSink) RecordUplink(channel int, crcOK bool, size int)        {}
func (f *fakeAuditSink) RecordDownlink(channel int, errCode gwproto.TxAckError) {}
func (f *fakeAuditSink) RecordStat(snap gwproto.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = append(f.stats, snap)
}

func (f *fakeAuditSink) statCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stats)
}

// fakeNetworkServer is a loopback stand-in for a Network Server: it
// captures the gateway's source address off its first datagram (a
// PULL_DATA, sent by the keep-alive emitter) and can then push datagrams
// back at will.
type fakeNetworkServer struct {
	conn    *net.UDPConn
	gwAddr  *net.UDPAddr
	inbound chan []byte
}

func startFakeNetworkServer(t *testing.T) *fakeNetworkServer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	s := &fakeNetworkServer{conn: conn, inbound: make(chan []byte, 16)}
	go func() {
		buf := make([]byte, 65536)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if s.gwAddr == nil {
				s.gwAddr = addr
			}
			datagram := make([]byte, n)
			copy(datagram, buf[:n])
			select {
			case s.inbound <- datagram:
			default:
			}
			h, _, _, err := gwproto.Split(datagram)
			if err != nil {
				continue
			}
			switch h.ID {
			case gwproto.PushData:
				ack := gwproto.BuildPushAck(h.Token)
				conn.WriteToUDP(ack, addr)
			case gwproto.PullData:
				ack := gwproto.BuildPullAck(h.Token)
				conn.WriteToUDP(ack, addr)
			}
		}
	}()
	return s
}

func (s *fakeNetworkServer) port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

func (s *fakeNetworkServer) waitForGatewayAddr(t *testing.T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for s.gwAddr == nil {
		select {
		case <-s.inbound:
		case <-deadline:
			t.Fatal("timed out waiting for gateway to contact fake server")
		}
	}
}

func (s *fakeNetworkServer) send(t *testing.T, datagram []byte) {
	t.Helper()
	if s.gwAddr == nil {
		t.Fatal("gateway address not yet known")
	}
	if _, err := s.conn.WriteToUDP(datagram, s.gwAddr); err != nil {
		t.Fatalf("WriteToUDP: %v", err)
	}
}

func newTestEngine(t *testing.T, serverPort int) (*Engine, *radio.SoftPort) {
	t.Helper()
	registry := mac.New(64)
	port := radio.NewSoftPort()
	defaults := radio.PhySettings{
		FrequencyHz: 923_400_000, TxPowerDbm: 14,
		SpreadingFactor: 7, BandwidthHz: 125_000, CodingRate: 5, PreambleLen: 8,
	}
	if err := registry.Bind(0, port, defaults); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Identity = gwproto.GatewayIdentity{EUI: 0x00800000ABCD1234, Platform: "test"}
	cfg.Session.Endpoint = gwproto.ServerEndpoint{Host: "127.0.0.1", Port: serverPort}
	cfg.StatInterval = time.Hour
	cfg.KeepaliveInterval = 20 * time.Millisecond

	return New(cfg, registry), port
}

func TestEngineForwardsUplinkAndReceivesPushAck(t *testing.T) {
	srv := startFakeNetworkServer(t)
	defer srv.conn.Close()

	eng, port := newTestEngine(t, srv.port())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	srv.waitForGatewayAddr(t)

	port.InjectReceive([]byte{0xDE, 0xAD, 0xBE, 0xEF}, -70, 9.5)

	deadline := time.After(2 * time.Second)
	for {
		snap := eng.Snapshot()
		if snap.Counters.Rxfw >= 1 && snap.Counters.Ackn >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for forward+ack, got %+v", snap.Counters)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEngineSchedulesImmediateDownlink(t *testing.T) {
	srv := startFakeNetworkServer(t)
	defer srv.conn.Close()

	eng, port := newTestEngine(t, srv.port())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	srv.waitForGatewayAddr(t)

	txpk := gwproto.TXPK{
		Imme: true, Freq: 923.4, Powe: 14, Modu: "LORA",
		Datr: "SF7BW125", Codr: "4/5", Size: 4, Data: gwproto.EncodeData([]byte{1, 2, 3, 4}),
	}

	pullResp, err := buildPullResp(0x55AA, txpk)
	if err != nil {
		t.Fatalf("buildPullResp: %v", err)
	}
	srv.send(t, pullResp)

	deadline := time.After(2 * time.Second)
	for {
		if len(port.TxLog) >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for immediate downlink to transmit")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if string(port.TxLog[0]) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("got transmitted payload %x", port.TxLog[0])
	}
}

func TestEngineStatusEmitterRecordsStatToAuditSink(t *testing.T) {
	srv := startFakeNetworkServer(t)
	defer srv.conn.Close()

	eng, _ := newTestEngine(t, srv.port())
	eng.config.StatInterval = 20 * time.Millisecond

	sink := &fakeAuditSink{}
	eng.SetAuditSink(sink)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	deadline := time.After(2 * time.Second)
	for sink.statCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for statusEmitter to call RecordStat")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// buildPullResp hand-assembles a short-header PULL_RESP datagram wrapping
// txpk, since gwproto only exposes the gateway-side PULL_RESP parser, not
// a builder (the Network Server role is out of scope for this module).
func buildPullResp(token uint16, txpk gwproto.TXPK) ([]byte, error) {
	buf := make([]byte, 4)
	buf[0] = 0x02
	buf[1] = byte(token >> 8)
	buf[2] = byte(token)
	buf[3] = byte(gwproto.PullResp)
	body, err := json.Marshal(struct {
		TXPK gwproto.TXPK `json:"txpk"`
	}{TXPK: txpk})
	if err != nil {
		return nil, err
	}
	return append(buf, body...), nil
}
