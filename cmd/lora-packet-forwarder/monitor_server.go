package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/agsys/lorawan-gateway-forwarder/internal/monitor"
)

// monitorServer mounts a monitor.Hub on an HTTP listener, run alongside
// the Supervisor for the lifetime of the process.
type monitorServer struct {
	addr   string
	hub    *monitor.Hub
	server *http.Server
}

func newMonitorServer(addr string, hub *monitor.Hub) *monitorServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	return &monitorServer{
		addr: addr,
		hub:  hub,
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (m *monitorServer) start() {
	go func() {
		log.Printf("monitor dashboard listening on %s", m.addr)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("monitor server: %v", err)
		}
	}()
}

func (m *monitorServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.server.Shutdown(ctx)
}
