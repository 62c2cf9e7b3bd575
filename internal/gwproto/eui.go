package gwproto

import (
	"encoding/binary"
	"fmt"
)

// DecodeGatewayEUI reads the 8-byte gateway EUI that follows the 4-byte
// common header on gateway-originated datagrams (PUSH_DATA, PULL_DATA,
// TX_ACK). Callers must check ID.gatewayOriginated() is true and that buf
// is at least HeaderLen bytes before calling this.
func DecodeGatewayEUI(buf []byte) (uint64, error) {
	if len(buf) < HeaderLen {
		return 0, fmt.Errorf("gwproto: datagram too short for gateway EUI: %d bytes", len(buf))
	}
	return binary.BigEndian.Uint64(buf[4:12]), nil
}

// Split separates a decoded datagram into its Header, gateway EUI (zero if
// not present), and remaining JSON body, in one pass. This is the normal
// entry point for internal/session when dispatching an inbound datagram.
func Split(buf []byte) (Header, uint64, []byte, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Header{}, 0, nil, err
	}
	if !h.ID.gatewayOriginated() {
		if len(buf) < shortHeaderLen {
			return Header{}, 0, nil, fmt.Errorf("gwproto: datagram too short: %d bytes", len(buf))
		}
		return h, 0, buf[shortHeaderLen:], nil
	}
	eui, err := DecodeGatewayEUI(buf)
	if err != nil {
		return Header{}, 0, nil, err
	}
	return h, eui, buf[HeaderLen:], nil
}
