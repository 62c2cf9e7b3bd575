// Package downstream implements the Downstream Decoder (spec §4.4): a
// pure function from a PULL_RESP JSON body to a TxRequest. It never
// transmits, schedules, or mutates counters.
package downstream

import (
	"fmt"

	"github.com/agsys/lorawan-gateway-forwarder/internal/gwproto"
)

// TxRequest is the typed downlink request produced from PULL_RESP JSON
// (spec §3).
type TxRequest struct {
	Immediate   bool
	TargetTmst  uint32
	TargetTmms  uint64
	Modulation  string
	FreqMHz     float64
	PowerDbm    int
	SF          int
	BWHz        int
	CodingRate  int
	PreambleLen int
	InvertIQ    bool
	NoCRC       bool
	Payload     []byte
	Size        int
	ServerToken uint16
}

// Decode parses body (the bytes following a PULL_RESP's 4-byte header)
// into a TxRequest, echoing serverToken so the caller can thread it
// through to the eventual TX_ACK.
func Decode(body []byte, serverToken uint16) (TxRequest, error) {
	txpk, err := gwproto.ParsePullResp(body)
	if err != nil {
		return TxRequest{}, fmt.Errorf("downstream: %w", err)
	}

	sf, bwHz, err := gwproto.ParseDatr(txpk.Datr)
	if err != nil {
		return TxRequest{}, fmt.Errorf("downstream: %w", err)
	}
	cr, err := gwproto.ParseCodr(txpk.Codr)
	if err != nil {
		return TxRequest{}, fmt.Errorf("downstream: %w", err)
	}
	payload, err := gwproto.DecodeData(txpk.Data)
	if err != nil {
		return TxRequest{}, fmt.Errorf("downstream: %w", err)
	}

	return TxRequest{
		Immediate:   txpk.Imme,
		TargetTmst:  txpk.Tmst,
		TargetTmms:  txpk.Tmms,
		Modulation:  txpk.Modu,
		FreqMHz:     txpk.Freq,
		PowerDbm:    int(txpk.Powe),
		SF:          sf,
		BWHz:        bwHz,
		CodingRate:  cr,
		PreambleLen: int(txpk.Prea),
		InvertIQ:    txpk.Ipol,
		NoCRC:       txpk.Ncrc,
		Payload:     payload,
		Size:        len(payload),
		ServerToken: serverToken,
	}, nil
}
