package session

import (
	"net"
	"testing"
	"time"

	"github.com/agsys/lorawan-gateway-forwarder/internal/gwproto"
)

func startFakeServer(t *testing.T) (*net.UDPConn, int) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

func TestDriverDispatchesPullResp(t *testing.T) {
	server, port := startFakeServer(t)
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Endpoint = gwproto.ServerEndpoint{Host: "127.0.0.1", Port: port}
	cfg.GatewayEUI = 0x1122334455667788
	d := New(cfg)

	events := make(chan Event, 4)
	d.RegisterEventHandler(func(e Event) { events <- e })

	if err := d.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer d.Disconnect()

	// Let the gateway's ephemeral source address reach the server by
	// sending one PULL_DATA first.
	d.Send(gwproto.BuildPullData(0x0001, cfg.GatewayEUI))

	buf := make([]byte, 2048)
	server.SetReadDeadline(time.Now().Add(time.Second))
	n, clientAddr, err := server.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if n == 0 {
		t.Fatal("expected a non-empty PULL_DATA datagram")
	}

	pullResp := []byte(`{"txpk":{"imme":true,"freq":923.4,"datr":"SF7BW125","codr":"4/5","data":"3q2+7w=="}}`)
	buf2 := make([]byte, gwproto.HeaderLen+len(pullResp))
	n2 := gwproto.EncodeHeader(buf2, 0xAB12, gwproto.PullResp, 0)
	// PULL_RESP is server-originated: rewrite to the short header.
	short := append([]byte{buf2[0], buf2[1], buf2[2], buf2[3]}, pullResp...)
	_ = n2
	if _, err := server.WriteToUDP(short, clientAddr); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case e := <-events:
		if e.Kind != EventPullResp || e.Token != 0xAB12 {
			t.Fatalf("got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for PULL_RESP dispatch")
	}
}

func TestSendTxAckUsesPendingToken(t *testing.T) {
	server, port := startFakeServer(t)
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Endpoint = gwproto.ServerEndpoint{Host: "127.0.0.1", Port: port}
	cfg.GatewayEUI = 0xAABBCCDDEEFF0011
	d := New(cfg)
	if err := d.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer d.Disconnect()

	if err := d.SendTxAck(gwproto.ErrNone); err == nil {
		t.Fatal("expected an error when no PULL_RESP token is pending")
	}

	d.mu.Lock()
	d.pendingToken = 0xCAFE
	d.hasPendingToken = true
	d.mu.Unlock()

	if err := d.SendTxAck(gwproto.ErrTooLate); err != nil {
		t.Fatalf("SendTxAck: %v", err)
	}

	buf := make([]byte, 2048)
	server.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := server.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	h, eui, body, err := gwproto.Split(buf[:n])
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if h.ID != gwproto.TxAck || h.Token != 0xCAFE || eui != cfg.GatewayEUI {
		t.Fatalf("got header=%+v eui=%x", h, eui)
	}
	if string(body) != `{"txpk_ack":{"error":"TOO_LATE"}}` {
		t.Fatalf("got body %s", body)
	}
}
