package signal

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is what a signal tells the trader to do.
type Kind int8

const (
	Buy Kind = iota + 1
	Sell
	ExitBuy
	ExitSell
)

var kindNames = map[Kind]string{
	Buy:      "Buy",
	Sell:     "Sell",
	ExitBuy:  "Exit Buy",
	ExitSell: "Exit Sell",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int8(k))
}

// IsEntry reports whether k opens a position.
func (k Kind) IsEntry() bool { return k == Buy || k == Sell }

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown signal kind %q", s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

type Signal struct {
	Time   time.Time `json:"time"`
	Kind   Kind      `json:"kind"`
	Index  int       `json:"index"`  // row in the daily table
	Price  float64   `json:"price"`  // close on Time
	Reason string    `json:"reason"` // condition that fired
}
