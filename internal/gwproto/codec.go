package gwproto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Defaults applied by ParsePullResp to any TXPK field the server omitted,
// per spec §6's txpk default table.
const (
	defaultPower     int32  = 14
	defaultModulation string = "LORA"
	defaultDatr      string = "SF7BW125"
	defaultCodr      string = "4/5"
	defaultPreamble  uint32 = 8
)

// EncodeData base64-encodes a raw PHY payload the way Data fields on the
// wire expect (standard alphabet, padded).
func EncodeData(payload []byte) string {
	return base64.StdEncoding.EncodeToString(payload)
}

// DecodeData reverses EncodeData. Some implementations omit padding, so
// RawStdEncoding is tried as a fallback.
func DecodeData(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("gwproto: invalid base64 payload: %w", err)
	}
	return b, nil
}

// BuildPushData assembles a complete PUSH_DATA datagram: header plus a JSON
// body carrying rxpk, stat, or both (spec §6; at least one of the two must
// be supplied by the caller, enforced by callers in internal/upstream).
func BuildPushData(token uint16, gatewayEUI uint64, rxpk []RXPK, stat *Stat) ([]byte, error) {
	body, err := json.Marshal(PushDataBody{RXPK: rxpk, Stat: stat})
	if err != nil {
		return nil, fmt.Errorf("gwproto: marshal PUSH_DATA body: %w", err)
	}
	buf := make([]byte, HeaderLen+len(body))
	n := EncodeHeader(buf, token, PushData, gatewayEUI)
	copy(buf[n:], body)
	return buf, nil
}

// BuildPullData assembles a PULL_DATA keep-alive datagram: header only, no
// JSON body (spec §6).
func BuildPullData(token uint16, gatewayEUI uint64) []byte {
	buf := make([]byte, HeaderLen)
	EncodeHeader(buf, token, PullData, gatewayEUI)
	return buf
}

// BuildPushAck assembles a PUSH_ACK: the short, server-originated 4-byte
// header with no body, echoing the PUSH_DATA token (spec §6).
func BuildPushAck(token uint16) []byte {
	buf := make([]byte, shortHeaderLen)
	buf[0] = ProtocolVersion
	buf[1] = byte(token >> 8)
	buf[2] = byte(token)
	buf[3] = byte(PushAck)
	return buf
}

// BuildPullAck assembles a PULL_ACK: the short header with no body, echoing
// the PULL_DATA token (spec §6).
func BuildPullAck(token uint16) []byte {
	buf := make([]byte, shortHeaderLen)
	buf[0] = ProtocolVersion
	buf[1] = byte(token >> 8)
	buf[2] = byte(token)
	buf[3] = byte(PullAck)
	return buf
}

// BuildTxAck assembles a TX_ACK datagram: header plus a txpk_ack body
// carrying the classified outcome, echoing the token the triggering
// PULL_RESP carried (spec §4.5, §6). Per the eager TX_ACK decision recorded
// in SPEC_FULL.md, errCode reflects validation outcome, not completion of
// the physical transmission.
func BuildTxAck(token uint16, gatewayEUI uint64, errCode TxAckError) ([]byte, error) {
	var body TxAckBody
	body.TxpkAck.Error = errCode
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gwproto: marshal TX_ACK body: %w", err)
	}
	buf := make([]byte, HeaderLen+len(encoded))
	n := EncodeHeader(buf, token, TxAck, gatewayEUI)
	copy(buf[n:], encoded)
	return buf, nil
}

// ParsePullResp decodes a PULL_RESP datagram's body (the bytes following
// the short 4-byte header) into a TXPK, filling in every field the server
// omitted with the defaults from spec §6.
func ParsePullResp(body []byte) (TXPK, error) {
	var parsed PullRespBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return TXPK{}, fmt.Errorf("gwproto: parse PULL_RESP body: %w", err)
	}
	if parsed.TXPK == nil {
		return TXPK{}, fmt.Errorf("gwproto: PULL_RESP body missing txpk object")
	}
	t := *parsed.TXPK
	if t.Powe == 0 {
		t.Powe = defaultPower
	}
	if t.Modu == "" {
		t.Modu = defaultModulation
	}
	if t.Datr == "" {
		t.Datr = defaultDatr
	}
	if t.Codr == "" {
		t.Codr = defaultCodr
	}
	if t.Prea == 0 {
		t.Prea = defaultPreamble
	}
	return t, nil
}

// ParsePushData decodes a PUSH_DATA datagram's body into its rxpk/stat
// parts. Used by test fixtures to inspect gateway-originated datagrams.
func ParsePushData(body []byte) (PushDataBody, error) {
	var parsed PushDataBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return PushDataBody{}, fmt.Errorf("gwproto: parse PUSH_DATA body: %w", err)
	}
	return parsed, nil
}
