package broker

// State is the broker lifecycle state machine (spec.md §4.3).
type State uint8

const (
	StateNew State = iota
	StateAccepted
	StateWaitHandshake // DTLS only, between Accepted and Connected
	StateConnected
	StateReading
	StateWriting
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateAccepted:
		return "ACCEPTED"
	case StateWaitHandshake:
		return "WAIT_HANDSHAKE"
	case StateConnected:
		return "CONNECTED"
	case StateReading:
		return "READING"
	case StateWriting:
		return "WRITING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// canTransition enforces the state machine edges from spec.md §4.3: any
// state may move to CLOSING, and READING/WRITING freely alternate once
// CONNECTED.
func canTransition(from, to State) bool {
	if to == StateClosing {
		return from != StateClosed
	}
	switch from {
	case StateNew:
		return to == StateAccepted
	case StateAccepted:
		return to == StateConnected || to == StateWaitHandshake
	case StateWaitHandshake:
		return to == StateConnected
	case StateConnected, StateReading, StateWriting:
		return to == StateReading || to == StateWriting || to == StateConnected
	case StateClosing:
		return to == StateClosed
	default:
		return false
	}
}
