package gwproto

import "fmt"

// GatewayIdentity is immutable gateway metadata carried in every stat
// datagram and used to fill the header's gateway EUI field (spec §3).
type GatewayIdentity struct {
	EUI         uint64
	Latitude    float64
	Longitude   float64
	Altitude    int
	Platform    string
	Contact     string
	Description string
}

// ServerEndpoint is the Network Server's UDP address, immutable after init.
type ServerEndpoint struct {
	Host    string
	Port    int
	Version byte // always ProtocolVersion
}

// Addr formats the endpoint as a host:port pair for net.ResolveUDPAddr.
func (e ServerEndpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// RXPK is the wire shape of one entry in a PUSH_DATA's "rxpk" array
// (spec §6). Field names match the protocol's terse on-air names;
// internal/upstream builds one from a mac.RxPacket in EncodeUplink.
type RXPK struct {
	Chan uint8   `json:"chan"`
	Rfch uint8   `json:"rfch"`
	Freq float64 `json:"freq"`
	Stat int8    `json:"stat"`
	Modu string  `json:"modu"`
	Datr string  `json:"datr"`
	Codr string  `json:"codr"`
	Rssi int32   `json:"rssi"`
	Lsnr float64 `json:"lsnr"`
	Size uint32  `json:"size"`
	Data string  `json:"data"`
	Tmst uint32  `json:"tmst"`
	Time string  `json:"time,omitempty"`
	Tmms uint64  `json:"tmms,omitempty"`
}

// TXPK is the wire shape of a PULL_RESP's "txpk" object (spec §6). Every
// field is optional on the wire; ParsePullResp fills documented defaults
// for anything absent before returning a TXPK.
type TXPK struct {
	Imme bool    `json:"imme"`
	Tmst uint32  `json:"tmst"`
	Tmms uint64  `json:"tmms"`
	Rfch uint8   `json:"rfch"`
	Freq float64 `json:"freq"`
	Powe int32   `json:"powe"`
	Modu string  `json:"modu"`
	Datr string  `json:"datr"`
	Codr string  `json:"codr"`
	Prea uint32  `json:"prea"`
	Fdev uint32  `json:"fdev"`
	Ipol bool    `json:"ipol"`
	Ncrc bool    `json:"ncrc"`
	Size uint32  `json:"size"`
	Data string  `json:"data"`
}

// Stat is the wire shape of a PUSH_DATA's optional "stat" object (spec §6).
type Stat struct {
	Time string  `json:"time"`
	Lati float64 `json:"lati"`
	Long float64 `json:"long"`
	Alti int     `json:"alti"`
	Rxnb uint32  `json:"rxnb"`
	Rxok uint32  `json:"rxok"`
	Rxfw uint32  `json:"rxfw"`
	Ackr float64 `json:"ackr"`
	Dwnb uint32  `json:"dwnb"`
	Txnb uint32  `json:"txnb"`
	Pfrm string  `json:"pfrm"`
	Mail string  `json:"mail"`
	Desc string  `json:"desc"`
}

// PushDataBody is the top-level JSON object carried after a PUSH_DATA
// header; either field may be absent on the wire, so RXPK is a slice and
// Stat a pointer, each omitted from the JSON when empty or nil.
type PushDataBody struct {
	RXPK []RXPK `json:"rxpk,omitempty"`
	Stat *Stat  `json:"stat,omitempty"`
}

// PullRespBody is the top-level JSON object carried after a PULL_RESP
// header.
type PullRespBody struct {
	TXPK *TXPK `json:"txpk"`
}

// TxAckError is the classified TX_ACK outcome (spec §4.5/§6).
type TxAckError string

// Error codes defined by spec §6.
const (
	ErrNone     TxAckError = "NONE"
	ErrTooLate  TxAckError = "TOO_LATE"
	ErrTooEarly TxAckError = "TOO_EARLY"
	ErrTxPower  TxAckError = "TX_POWER"
	ErrTxFreq   TxAckError = "TX_FREQ"
)

// TxAckBody is the top-level JSON object carried after a TX_ACK header.
type TxAckBody struct {
	TxpkAck struct {
		Error TxAckError `json:"error"`
	} `json:"txpk_ack"`
}
