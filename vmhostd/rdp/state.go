package rdp

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Callbacks are invoked without the client lock held, on the goroutine that caused the event.
type Callbacks struct {
	OnStateChanged  func(state State)
	OnLogMessage    func(message string)
	OnMouseEvent    func(x, y, button int, pressed bool)
	OnKeyboardEvent func(key int, pressed bool)
	OnClipboardData func(text string)
}
