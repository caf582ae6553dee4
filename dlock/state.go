package dlock

type State int32

const (
	StateUnlocked State = iota
	StateHeld
	StateReleased
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUnlocked:
		return "unlocked"
	case StateHeld:
		return "held"
	case StateReleased:
		return "released"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}
