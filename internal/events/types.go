// Package events provides an in-process event bus for run progress.
package events

import "time"

// EventType identifies an event
type EventType string

const (
	RunStarted        EventType = "run_started"
	ScenarioCompleted EventType = "scenario_completed"
	ScenarioFailed    EventType = "scenario_failed"
	RunCompleted      EventType = "run_completed"
	RunFailed         EventType = "run_failed"
)

// AllTypes lists every event type the bus carries.
var AllTypes = []EventType{RunStarted, ScenarioCompleted, ScenarioFailed, RunCompleted, RunFailed}

// Event is a published event
type Event struct {
	Type      EventType `json:"type"`
	Module    string    `json:"module"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}
