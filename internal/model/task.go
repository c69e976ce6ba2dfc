package model

import (
	"encoding/json"
	"time"

	sw "github.com/filanov/stateswitch"
	"github.com/google/uuid"
)

const (
	TaskVersion = "1.0"
)

// Task is the unit of work for one commissioning run of one device.
//
// A task carries the cloud registry identifiers captured as stages
// complete, the stateswitch state the pipeline state machine drives,
// and a status record for operator diagnostics.
//
// nolint:govet // fieldalignment - struct is better readable in its current form.
type Task struct {
	// StructVersion indicates the Task object version.
	StructVersion string `json:"task_version"`

	// Task unique identifier.
	ID uuid.UUID `json:"id"`

	// DeviceID is the operator supplied device identifier, the key
	// across every downstream system.
	DeviceID string `json:"device_id"`

	// CurrentState is the pipeline state machine state.
	CurrentState sw.State `json:"state"`

	// Status holds informational data on the state
	Status StatusRecord `json:"status"`

	// WirelessDevice is set once the register stage completes.
	WirelessDevice WirelessDeviceRecord `json:"wireless_device,omitempty"`

	// Thing is set once the createThing stage completes.
	Thing ThingRecord `json:"thing,omitempty"`

	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// State implements the stateswitch StateSwitch interface.
func (t *Task) State() sw.State {
	return t.CurrentState
}

// SetState implements the stateswitch StateSwitch interface.
func (t *Task) SetState(state sw.State) error {
	t.CurrentState = state
	t.UpdatedAt = time.Now()

	return nil
}

func NewTask(deviceID string, initial sw.State) *Task {
	return &Task{
		StructVersion: TaskVersion,
		ID:            uuid.New(),
		DeviceID:      deviceID,
		CurrentState:  initial,
		Status:        NewTaskStatusRecord("initialized task"),
		CreatedAt:     time.Now(),
	}
}

func NewTaskStatusRecord(s string) StatusRecord {
	sr := StatusRecord{}
	if s == "" {
		return sr
	}

	sr.Append(s)

	return sr
}

type StatusRecord struct {
	StatusMsgs []StatusMsg `json:"records"`
}

type StatusMsg struct {
	Timestamp time.Time `json:"ts,omitempty"`
	Msg       string    `json:"msg,omitempty"`
}

func (sr *StatusRecord) Append(s string) {
	if s == "" {
		return
	}

	for _, r := range sr.StatusMsgs {
		if r.Msg == s {
			return
		}
	}

	n := StatusMsg{Timestamp: time.Now(), Msg: s}

	sr.StatusMsgs = append(sr.StatusMsgs, n)
}

func (sr *StatusRecord) Last() string {
	if len(sr.StatusMsgs) == 0 {
		return ""
	}

	return sr.StatusMsgs[len(sr.StatusMsgs)-1].Msg
}

func (sr *StatusRecord) MustMarshal() json.RawMessage {
	b, err := json.Marshal(sr)
	if err != nil {
		panic(err)
	}

	return b
}
