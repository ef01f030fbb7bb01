package storage

import "time"

// Change kinds recorded in the history.
const (
	ChangeNewOperator = "new-operator"
	ChangeNewItem     = "new-item-existing-operator"
)

// Change captures a single detected change for auditing or printing.
type Change struct {
	OccurredAt time.Time

	Operator  string
	Number    string
	TradeName string
	Period    string

	ChangeType string // new-operator | new-item-existing-operator
}

// Item is one registry item as last observed.
type Item struct {
	Number    string
	Operator  string
	TradeName string
	Period    string
	Status    string
}

// Stats summarises the history database.
type Stats struct {
	Operators int
	Items     int
	Changes   int
	LastRun   time.Time
}
