package position

// Position is the sequencer's view of the open trade.
type Position int8

const (
	None Position = 0
	Buy  Position = 1
	Sell Position = -1
)

func (p Position) String() string {
	switch p {
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	default:
		return "None"
	}
}
