// Package radio defines the Radio Port capability set (spec §4.1) and two
// implementations of it: SoftPort, a pure-software fake used to exercise
// internal/mac in tests without hardware, and ConcentratorPort, the
// production adapter that speaks to an external concentrator daemon over
// ZeroMQ. The register-level chip driver itself is an out-of-scope external
// collaborator; neither implementation here touches SPI or a chip register.
package radio

// EventKind tags a PhyEvent the way spec §3 describes: a transmit
// finishing, a frame received, or a CRC failure.
type EventKind int

const (
	TransmitCompleted EventKind = iota
	ReceiveCompleted
	CrcError
)

func (k EventKind) String() string {
	switch k {
	case TransmitCompleted:
		return "TransmitCompleted"
	case ReceiveCompleted:
		return "ReceiveCompleted"
	case CrcError:
		return "CrcError"
	default:
		return "Unknown"
	}
}

// PhyEvent is the tagged union a Port reports through its registered
// callback (spec §3). Payload is only meaningful for ReceiveCompleted and
// is owned by the callback for the duration of the call; the port may
// reuse its internal buffer afterward, so callers that need to retain it
// must copy.
type PhyEvent struct {
	Kind    EventKind
	Payload []byte
	Len     int
}

// PhySettings is the per-channel radio configuration spec §3 describes:
// a persistent default plus a transient per-transmit override.
type PhySettings struct {
	FrequencyHz    int64
	TxPowerDbm     int
	SpreadingFactor int
	BandwidthHz    int
	CodingRate     int
	PreambleLen    int
	CRCEnabled     bool
	InvertIQ       bool
	SyncWord       byte
}

// EventHandler receives PhyEvents from a bound Port. Implementations must
// not block; the port calls it synchronously from its own event loop.
type EventHandler func(PhyEvent)

// Port is the capability set spec §4.1 requires: polymorphic enough that
// internal/mac can be driven by a pure-software fake in tests, and narrow
// enough that a real chip adapter implements it without leaking hardware
// detail upward.
type Port interface {
	// Init brings the port up. It returns an error if the port cannot be
	// brought up, and the MAC Registry refuses to bind a channel whose port
	// fails Init. ConcentratorPort.Init only registers the port with its
	// hub and always succeeds; it does not query the external daemon.
	Init() error

	// Shutdown releases any resources Init acquired.
	Shutdown() error

	// SetDefaultSettings applies settings as the port's persistent
	// default. It does not change the receive state; callers follow it
	// with EnterContinuousReceive.
	SetDefaultSettings(PhySettings) error

	// SetSyncWord, SetFrequency, SetTxPower, SetSpreadingFactor,
	// SetBandwidth, SetCodingRate, and SetPreamble apply one transient
	// override each; the MAC Registry's ApplySettings calls all of them
	// except SetSyncWord, followed by EnableCRC and EnableInvertIQ.
	SetSyncWord(byte) error
	SetFrequency(hz int64) error
	SetTxPower(dbm int) error
	SetSpreadingFactor(sf int) error
	SetBandwidth(hz int) error
	SetCodingRate(denominator int) error
	SetPreamble(length int) error
	EnableCRC(bool) error
	EnableInvertIQ(bool) error

	// EnterContinuousReceive places the port back in rx mode; the MAC
	// Registry calls this after restoring defaults around a transmit.
	EnterContinuousReceive() error

	// Transmit sends payload using the port's current settings.
	Transmit(payload []byte) error

	// LastPacketRSSI and LastPacketSNR report signal quality for the
	// most recently received frame.
	LastPacketRSSI() int32
	LastPacketSNR() float64

	// OnPhyEvent registers the callback the port invokes for every
	// PhyEvent. Only one handler is supported; a later call replaces
	// an earlier one.
	OnPhyEvent(EventHandler)
}
