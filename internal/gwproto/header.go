// Package gwproto implements the Semtech UDP "protocol 2" wire format: the
// 12-byte binary header, the rxpk/txpk/stat JSON payload shapes, and the
// token/counter bookkeeping that ties them together. It is a pure codec
// package — it never opens a socket and never schedules a transmission.
package gwproto

import (
	"encoding/binary"
	"fmt"
)

// ProtocolVersion is the only version this codec understands.
const ProtocolVersion byte = 0x02

// Identifier is the header's 4th byte, selecting the datagram kind.
type Identifier byte

// Identifiers defined by spec §6.
const (
	PushData Identifier = 0x00
	PushAck  Identifier = 0x01
	PullData Identifier = 0x02
	PullResp Identifier = 0x03
	PullAck  Identifier = 0x04
	TxAck    Identifier = 0x05
)

func (id Identifier) String() string {
	switch id {
	case PushData:
		return "PUSH_DATA"
	case PushAck:
		return "PUSH_ACK"
	case PullData:
		return "PULL_DATA"
	case PullResp:
		return "PULL_RESP"
	case PullAck:
		return "PULL_ACK"
	case TxAck:
		return "TX_ACK"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(id))
	}
}

// gatewayOriginated reports whether datagrams of this identifier carry the
// 8-byte gateway EUI after the 4-byte common header. PUSH_DATA, PULL_DATA,
// and TX_ACK are sent by the gateway and carry the EUI; PUSH_ACK, PULL_ACK,
// and PULL_RESP are sent by the server and do not (spec §6 header table).
func (id Identifier) gatewayOriginated() bool {
	switch id {
	case PushData, PullData, TxAck:
		return true
	default:
		return false
	}
}

// HeaderLen is the full header length when a gateway EUI is present.
const HeaderLen = 12

// shortHeaderLen is the header length for server-originated ACKs/responses.
const shortHeaderLen = 4

// EncodeHeader writes a gateway-originated header (version, token,
// identifier, gateway EUI) and returns the number of bytes written
// (always HeaderLen). buf must have at least HeaderLen bytes of capacity.
func EncodeHeader(buf []byte, token uint16, id Identifier, gatewayEUI uint64) int {
	buf[0] = ProtocolVersion
	binary.BigEndian.PutUint16(buf[1:3], token)
	buf[3] = byte(id)
	binary.BigEndian.PutUint64(buf[4:12], gatewayEUI)
	return HeaderLen
}

// Header is the decoded common prefix shared by every datagram kind. The
// gateway EUI, present only on gateway-originated datagrams, is decoded
// separately by the caller once it knows ID.gatewayOriginated() — see
// DecodeGatewayEUI.
type Header struct {
	Version byte
	Token   uint16
	ID      Identifier
}

// DecodeHeader parses the common 4-byte header prefix of any datagram. The
// caller is responsible for slicing off any trailing gateway EUI or JSON
// body based on the returned identifier.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < shortHeaderLen {
		return Header{}, fmt.Errorf("gwproto: datagram too short: %d bytes", len(buf))
	}
	h := Header{
		Version: buf[0],
		Token:   binary.BigEndian.Uint16(buf[1:3]),
		ID:      Identifier(buf[3]),
	}
	if h.Version != ProtocolVersion {
		return Header{}, fmt.Errorf("gwproto: unsupported protocol version 0x%02x", h.Version)
	}
	return h, nil
}
