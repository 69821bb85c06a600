package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SystemActorID identifies entries written by the server itself, such as
// scheduled decay.
var SystemActorID = uuid.Nil.String()

type Action int8

const (
	ActionSetPrice Action = iota
	ActionBuy
	ActionSell
	ActionDecay
	ActionSetModFactor
)

func (a Action) String() string {
	switch a {
	case ActionSetPrice:
		return "SET_PRICE"
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	case ActionDecay:
		return "DECAY"
	case ActionSetModFactor:
		return "SET_MOD_FACTOR"
	default:
		return fmt.Sprintf("Action(%d)", int8(a))
	}
}

// LedgerEntry is one append-only record of an economic action. Amount holds
// units for trades and decay, and the new value for admin price changes.
type LedgerEntry struct {
	ActorID        string    `json:"actor_id"`
	Action         Action    `json:"action"`
	ProductAlias   string    `json:"product_alias"`
	Amount         float64   `json:"amount"`
	MoneyExchanged float64   `json:"money_exchanged"`
	Timestamp      time.Time `json:"timestamp"`
}

// ValidActorID reports whether id is a well-formed actor identity.
func ValidActorID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
