// lora-packet-forwarder is the gateway-side executable: it loads a YAML
// configuration, binds the channel plan to either the software fake or a
// real concentrator daemon, and runs the Supervisor until a shutdown
// signal arrives. Structurally grounded on the teacher's
// cmd/agsys-controller/main.go: the same cobra run/version subcommands,
// the same load-config/build-engine-config/signal-handle shape.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agsys/lorawan-gateway-forwarder/internal/audit"
	"github.com/agsys/lorawan-gateway-forwarder/internal/forwarder"
	"github.com/agsys/lorawan-gateway-forwarder/internal/gwproto"
	"github.com/agsys/lorawan-gateway-forwarder/internal/mac"
	"github.com/agsys/lorawan-gateway-forwarder/internal/monitor"
	"github.com/agsys/lorawan-gateway-forwarder/internal/radio"
)

// fileConfig is the on-disk YAML shape.
type fileConfig struct {
	Gateway struct {
		EUI         string  `yaml:"eui"`
		Latitude    float64 `yaml:"latitude"`
		Longitude   float64 `yaml:"longitude"`
		Altitude    int     `yaml:"altitude"`
		Platform    string  `yaml:"platform"`
		Contact     string  `yaml:"contact"`
		Description string  `yaml:"description"`
	} `yaml:"gateway"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Channels []struct {
		Channel         int    `yaml:"channel"`
		FrequencyHz     int64  `yaml:"frequency_hz"`
		TxPowerDbm      int    `yaml:"tx_power_dbm"`
		SpreadingFactor int    `yaml:"spreading_factor"`
		BandwidthHz     int    `yaml:"bandwidth_hz"`
		CodingRate      int    `yaml:"coding_rate"`
		PreambleLen     int    `yaml:"preamble_len"`
	} `yaml:"channels"`

	Radio struct {
		Backend    string `yaml:"backend"` // "soft" or "concentrator"
		EventURL   string `yaml:"event_url"`
		CommandURL string `yaml:"command_url"`
	} `yaml:"radio"`

	Timing struct {
		StatIntervalSec      int `yaml:"stat_interval_sec"`
		KeepaliveIntervalSec int `yaml:"keepalive_interval_sec"`
	} `yaml:"timing"`

	Audit struct {
		DatabasePath string `yaml:"database_path"`
	} `yaml:"audit"`

	Monitor struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"monitor"`
}

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:   "lora-packet-forwarder",
		Short: "Semtech UDP LoRaWAN packet forwarder",
		Long:  "Forwards LoRa radio traffic to a Network Server over the Semtech UDP protocol.",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the packet forwarder",
		RunE:  runForwarder,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("lora-packet-forwarder v0.1.0")
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/lora-packet-forwarder/config.yaml", "Configuration file path")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

func runForwarder(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Gateway.EUI == "" {
		return fmt.Errorf("gateway.eui is required")
	}
	if len(cfg.Channels) == 0 {
		return fmt.Errorf("at least one channel must be configured")
	}

	var eui uint64
	if _, err := fmt.Sscanf(cfg.Gateway.EUI, "%x", &eui); err != nil {
		return fmt.Errorf("invalid gateway.eui: %w", err)
	}

	registry := mac.New(256)
	var hub *radio.ConcentratorHub
	if cfg.Radio.Backend == "concentrator" {
		hubCfg := radio.DefaultHubConfig()
		if cfg.Radio.EventURL != "" {
			hubCfg.EventURL = cfg.Radio.EventURL
		}
		if cfg.Radio.CommandURL != "" {
			hubCfg.CommandURL = cfg.Radio.CommandURL
		}
		hub = radio.NewConcentratorHub(hubCfg)
		if err := hub.Start(); err != nil {
			return fmt.Errorf("failed to start concentrator hub: %w", err)
		}
	}

	for _, ch := range cfg.Channels {
		defaults := radio.PhySettings{
			FrequencyHz:     ch.FrequencyHz,
			TxPowerDbm:      ch.TxPowerDbm,
			SpreadingFactor: ch.SpreadingFactor,
			BandwidthHz:     ch.BandwidthHz,
			CodingRate:      ch.CodingRate,
			PreambleLen:     ch.PreambleLen,
			CRCEnabled:      true,
		}

		var port radio.Port
		if hub != nil {
			port = radio.NewConcentratorPort(hub, uint8(ch.Channel))
		} else {
			port = radio.NewSoftPort()
		}
		if err := registry.Bind(ch.Channel, port, defaults); err != nil {
			return fmt.Errorf("failed to bind channel %d: %w", ch.Channel, err)
		}
	}

	engineCfg := forwarder.DefaultConfig()
	engineCfg.Identity = gwproto.GatewayIdentity{
		EUI:         eui,
		Latitude:    cfg.Gateway.Latitude,
		Longitude:   cfg.Gateway.Longitude,
		Altitude:    cfg.Gateway.Altitude,
		Platform:    cfg.Gateway.Platform,
		Contact:     cfg.Gateway.Contact,
		Description: cfg.Gateway.Description,
	}
	engineCfg.Session.Endpoint = gwproto.ServerEndpoint{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Version: gwproto.ProtocolVersion,
	}
	if cfg.Timing.StatIntervalSec > 0 {
		engineCfg.StatInterval = time.Duration(cfg.Timing.StatIntervalSec) * time.Second
	}
	if cfg.Timing.KeepaliveIntervalSec > 0 {
		engineCfg.KeepaliveInterval = time.Duration(cfg.Timing.KeepaliveIntervalSec) * time.Second
	}

	eng := forwarder.New(engineCfg, registry)

	if cfg.Audit.DatabasePath != "" {
		auditLog, err := audit.Open(cfg.Audit.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open audit database: %w", err)
		}
		defer auditLog.Close()
		eng.SetAuditSink(auditLog)
	}

	var hubServer *monitorServer
	if cfg.Monitor.ListenAddr != "" {
		dash := monitor.NewHub()
		eng.SetMonitorSink(dash)
		hubServer = newMonitorServer(cfg.Monitor.ListenAddr, dash)
		hubServer.start()
		defer hubServer.stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("starting lora-packet-forwarder for gateway %016x", eui)
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	sig := <-sigChan
	log.Printf("received signal %v, shutting down...", sig)

	eng.Stop()
	if hub != nil {
		hub.Stop()
	}

	log.Println("shutdown complete")
	return nil
}
