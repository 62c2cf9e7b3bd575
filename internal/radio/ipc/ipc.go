// Package ipc defines the wire messages exchanged with the external
// concentrator daemon that owns the real SX130x register access (the
// out-of-scope chip driver named in spec §1/§6). These types are hand
// written rather than generated from a schema, the same choice the
// teacher's internal/lora/gw package made to avoid a protoc build step;
// here they are shaped around our 8-channel PhySettings domain instead of
// a ChirpStack-specific layout.
package ipc

import (
	"encoding/json"
	"fmt"
)

// CodeRate mirrors the four coding-rate denominators spec §3 allows.
type CodeRate int

const (
	CodeRate4_5 CodeRate = 5
	CodeRate4_6 CodeRate = 6
	CodeRate4_7 CodeRate = 7
	CodeRate4_8 CodeRate = 8
)

// TxAckStatus classifies how the daemon's attempt to transmit went.
type TxAckStatus int

const (
	TxAckOK TxAckStatus = iota
	TxAckTooLate
	TxAckTooEarly
	TxAckCollision
	TxAckInternalError
)

func (s TxAckStatus) String() string {
	switch s {
	case TxAckOK:
		return "OK"
	case TxAckTooLate:
		return "TOO_LATE"
	case TxAckTooEarly:
		return "TOO_EARLY"
	case TxAckCollision:
		return "COLLISION"
	default:
		return "INTERNAL_ERROR"
	}
}

// Modulation describes the LoRa modulation parameters carried on both the
// uplink and downlink wire shapes.
type Modulation struct {
	SpreadingFactor int      `json:"sf"`
	BandwidthHz     int      `json:"bw"`
	CodeRate        CodeRate `json:"cr"`
	PreambleLen     int      `json:"prea,omitempty"`
	InvertIQ        bool     `json:"invert_iq,omitempty"`
}

// RxInfo is the radio-reported metadata for one received frame.
type RxInfo struct {
	FrequencyHz int64   `json:"freq"`
	Rssi        int32   `json:"rssi"`
	Snr         float64 `json:"snr"`
	CrcOK       bool    `json:"crc_ok"`
}

// UplinkFrame is the daemon's notification of one received PHY payload on
// a given channel.
type UplinkFrame struct {
	Channel    uint8      `json:"channel"`
	PhyPayload []byte     `json:"phy_payload"`
	RxInfo     RxInfo     `json:"rx_info"`
	Modulation Modulation `json:"modulation"`
}

// GatewayStats is the daemon's periodic self-reported counters, used only
// for diagnostics; the forwarder's own gwproto.Counters remain the source
// of truth for the Stat datagram.
type GatewayStats struct {
	RxPacketsReceived   uint32 `json:"rx_received"`
	RxPacketsReceivedOK uint32 `json:"rx_received_ok"`
	TxPacketsEmitted    uint32 `json:"tx_emitted"`
}

// Event is the daemon-to-adapter envelope; exactly one field is set, the
// same "only one of these will be set" convention the teacher's gw.Event
// used for its protobuf-shaped oneof.
type Event struct {
	UplinkFrame  *UplinkFrame  `json:"uplink_frame,omitempty"`
	GatewayStats *GatewayStats `json:"gateway_stats,omitempty"`
}

// DownlinkTxInfo is the transmit configuration attached to a
// DownlinkFrame command.
type DownlinkTxInfo struct {
	FrequencyHz int64      `json:"freq"`
	PowerDbm    int32      `json:"power"`
	Modulation  Modulation `json:"modulation"`
}

// DownlinkFrame is the adapter-to-daemon command requesting an immediate
// transmit on one channel. Scheduling against the internal timebase
// happens entirely in internal/scheduler before this command is ever
// built; by the time it crosses this boundary "now" has already arrived.
type DownlinkFrame struct {
	DownlinkID uint32         `json:"downlink_id"`
	Channel    uint8          `json:"channel"`
	PhyPayload []byte         `json:"phy_payload"`
	TxInfo     DownlinkTxInfo `json:"tx_info"`
}

// DownlinkTxAck is the daemon's synchronous reply to a DownlinkFrame
// command.
type DownlinkTxAck struct {
	DownlinkID uint32      `json:"downlink_id"`
	Status     TxAckStatus `json:"status"`
}

// ChannelConfig is one slot of the daemon-side channel table, pushed by
// ConcentratorPort.SetDefaultSettings at bind time.
type ChannelConfig struct {
	Channel     uint8      `json:"channel"`
	FrequencyHz int64      `json:"freq"`
	SyncWord    byte       `json:"sync_word"`
	Modulation  Modulation `json:"modulation"`
}

// MarshalEvent encodes an Event for the event-socket wire.
func MarshalEvent(e *Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("ipc: marshal event: %w", err)
	}
	return b, nil
}

// UnmarshalEvent decodes an Event received from the event socket.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("ipc: unmarshal event: %w", err)
	}
	return &e, nil
}

// MarshalDownlinkFrame encodes a DownlinkFrame command for the REQ socket.
func MarshalDownlinkFrame(f *DownlinkFrame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("ipc: marshal downlink frame: %w", err)
	}
	return b, nil
}

// UnmarshalDownlinkTxAck decodes the daemon's reply to a DownlinkFrame.
func UnmarshalDownlinkTxAck(data []byte) (*DownlinkTxAck, error) {
	var ack DownlinkTxAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, fmt.Errorf("ipc: unmarshal downlink tx ack: %w", err)
	}
	return &ack, nil
}

// MarshalChannelConfig encodes a ChannelConfig command.
func MarshalChannelConfig(c *ChannelConfig) ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("ipc: marshal channel config: %w", err)
	}
	return b, nil
}
