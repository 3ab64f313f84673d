package events

import (
	"encoding/json"
	"time"

	"github.com/yz4230/shipyard/internal/entity"
)

type Type string

const (
	TypeLog      Type = "log"
	TypeStep     Type = "step"
	TypeComplete Type = "complete"
)

// Payload is one of Log, Step or Complete.
type Payload interface {
	eventType() Type
}

type Log struct {
	Message string `json:"message"`
	IsError bool   `json:"is_error"`
}

type StepStatus string

const (
	StepProcess StepStatus = "process"
	StepFinish  StepStatus = "finish"
	StepError   StepStatus = "error"
	StepSkip    StepStatus = "skip"
)

type Step struct {
	Stage   entity.Stage `json:"stage"`
	Index   int          `json:"index"`
	Status  StepStatus   `json:"status"`
	Message string       `json:"message"`
}

type Complete struct {
	Status  entity.DeploymentStatus `json:"status"`
	Message string                  `json:"message"`
}

func (Log) eventType() Type      { return TypeLog }
func (Step) eventType() Type     { return TypeStep }
func (Complete) eventType() Type { return TypeComplete }

type Event struct {
	RunID     string
	Timestamp time.Time
	Payload   Payload
}

func New(runID string, p Payload) Event {
	return Event{RunID: runID, Timestamp: time.Now(), Payload: p}
}

func (e Event) Type() Type {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.eventType()
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      Type      `json:"type"`
		RunID     string    `json:"run_id"`
		Timestamp time.Time `json:"timestamp"`
		Data      Payload   `json:"data"`
	}{e.Type(), e.RunID, e.Timestamp, e.Payload})
}
