package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agsys/lorawan-gateway-forwarder/internal/gwproto"
)

func TestHubBroadcastsUplinkToConnectedClient(t *testing.T) {
	h := NewHub()
	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for client registration")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.BroadcastUplink(3, -82, 7.5, 20)

	var frame Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if frame.Kind != EventUplink || frame.Channel != 3 || frame.Size != 20 {
		t.Fatalf("got %+v", frame)
	}
}

func TestHubBroadcastsStat(t *testing.T) {
	h := NewHub()
	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for client registration")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.BroadcastStat(gwproto.Snapshot{Rxnb: 10, Txnb: 4, Ackn: 3, Ackr: 0.75})

	var frame Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if frame.Kind != EventStat || frame.Counters == nil || frame.Counters.Txnb != 4 {
		t.Fatalf("got %+v", frame)
	}
}
