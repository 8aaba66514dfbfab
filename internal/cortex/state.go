package cortex

// State is the handshake state of a Client.
type State string

const (
	StateDisconnected    State = "disconnected"
	StateConnected       State = "connected"
	StateAccessRequested State = "access_requested"
	StateAuthorized      State = "authorized"
	StateHeadsetSelected State = "headset_selected"
	StateSessionActive   State = "session_active"
	StateSubscribed      State = "subscribed"
	StateRecording       State = "recording"
	StateClosed          State = "closed"
)

// handshakeOrder lists states in the order the handshake reaches them.
var handshakeOrder = []State{
	StateDisconnected,
	StateConnected,
	StateAccessRequested,
	StateAuthorized,
	StateHeadsetSelected,
	StateSessionActive,
	StateSubscribed,
	StateRecording,
}

func rank(s State) int {
	for i, st := range handshakeOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Reached reports whether s is at or past target in the handshake. A closed
// client has reached nothing.
func (s State) Reached(target State) bool {
	if s == StateClosed {
		return false
	}
	return rank(s) >= rank(target)
}
