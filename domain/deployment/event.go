package deployment

import (
	"time"
)

type Action string

const (
	ActionSetup  Action = "setup"
	ActionStart  Action = "start"
	ActionStop   Action = "stop"
	ActionRemove Action = "remove"
	ActionUpdate Action = "update"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Event records one change made to the local deployment.
type Event struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	Action    Action    `json:"action"`
	Tag       string    `json:"tag" gorm:"index"`
	UITag     string    `json:"ui_tag,omitempty"`
	Modules   []string  `json:"modules,omitempty" gorm:"serializer:json"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
}
