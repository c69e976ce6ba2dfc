// Package pipeline orchestrates the commissioning of one device: cloud
// registration, descriptor persistence, manufacturing image generation
// and flashing, in a fixed stage order with durable checkpoints.
package pipeline

import (
	"context"
	"strings"
	"time"

	sw "github.com/filanov/stateswitch"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/edge-toolbox/commissioner/internal/artifacts"
	"github.com/edge-toolbox/commissioner/internal/ledger"
	"github.com/edge-toolbox/commissioner/internal/metrics"
	"github.com/edge-toolbox/commissioner/internal/model"
	"github.com/edge-toolbox/commissioner/internal/provision"
	"github.com/edge-toolbox/commissioner/internal/registry"
)

const (
	// task states
	//
	// states the pipeline state machine transitions through, each state
	// names the side effects that exist once it is reached.
	stateQueued             sw.State = "queued"
	stateRegistered         sw.State = "registered"
	stateThingCreated       sw.State = "thingCreated"
	stateAssociated         sw.State = "associated"
	stateRecorded           sw.State = "recorded"
	stateDescriptorsFetched sw.State = "descriptorsFetched"
	stateProvisioned        sw.State = "provisioned"
	stateFlashed            sw.State = "flashed"
	stateFailed             sw.State = "failed"

	// transition types, named in the continuous present tense.
	transitionTypeRegister         sw.TransitionType = "registering"
	transitionTypeCreateThing      sw.TransitionType = "creatingThing"
	transitionTypeAssociate        sw.TransitionType = "associating"
	transitionTypeRecord           sw.TransitionType = "recordingInventory"
	transitionTypeFetchDescriptors sw.TransitionType = "fetchingDescriptors"
	transitionTypeProvision        sw.TransitionType = "provisioning"
	transitionTypeFlash            sw.TransitionType = "flashing"
)

var (
	ErrInvalidHandlerContext = errors.New("expected a HandlerContext{} type")
)

// stageDef ties a commissioning stage to its state machine transition.
type stageDef struct {
	stage      model.Stage
	transition sw.TransitionType
	source     sw.State
	dest       sw.State
}

// stagePlan returns the commissioning stages in execution order.
func stagePlan() []stageDef {
	return []stageDef{
		{model.StageRegister, transitionTypeRegister, stateQueued, stateRegistered},
		{model.StageCreateThing, transitionTypeCreateThing, stateRegistered, stateThingCreated},
		{model.StageAssociate, transitionTypeAssociate, stateThingCreated, stateAssociated},
		{model.StageRecord, transitionTypeRecord, stateAssociated, stateRecorded},
		{model.StageFetchDescriptors, transitionTypeFetchDescriptors, stateRecorded, stateDescriptorsFetched},
		{model.StageProvision, transitionTypeProvision, stateDescriptorsFetched, stateProvisioned},
		{model.StageFlash, transitionTypeFlash, stateProvisioned, stateFlashed},
	}
}

// HandlerContext holds the working attributes of one run, it is passed
// as the transition arguments into each stage handler.
type HandlerContext struct {
	Ctx  context.Context
	Task *model.Task
}

// Generator produces the manufacturing image pair for a device.
type Generator interface {
	Generate(ctx context.Context, p provision.Params) (binPath, hexPath string, err error)
}

// Flasher programs the attached chip with both hex images.
type Flasher interface {
	Flash(ctx context.Context, mfgHexPath, firmwareHexPath string) error
}

// Params configure a Pipeline.
type Params struct {
	Registry  registry.Client
	Ledger    ledger.Ledger
	Artifacts *artifacts.Store
	Generator Generator
	Flasher   Flasher

	// DestinationName and DeviceProfileID are fixed for the whole
	// production line, the device profile is shared across devices.
	DestinationName string
	DeviceProfileID string

	// FirmwareHexPath is the application firmware flashed after the
	// manufacturing image.
	FirmwareHexPath string

	Logger *logrus.Entry
}

// Pipeline commissions one device at a time. Collaborators are injected
// so the orchestration is testable with substitutes.
type Pipeline struct {
	registry  registry.Client
	ledger    ledger.Ledger
	store     *artifacts.Store
	generator Generator
	flasher   Flasher

	destination     string
	deviceProfileID string
	firmwareHexPath string

	logger *logrus.Entry
	sm     sw.StateMachine
}

func New(p Params) *Pipeline {
	pl := &Pipeline{
		registry:        p.Registry,
		ledger:          p.Ledger,
		store:           p.Artifacts,
		generator:       p.Generator,
		flasher:         p.Flasher,
		destination:     p.DestinationName,
		deviceProfileID: p.DeviceProfileID,
		firmwareHexPath: p.FirmwareHexPath,
		logger:          p.Logger,
		sm:              sw.NewStateMachine(),
	}

	handlers := map[model.Stage]func(*HandlerContext) error{
		model.StageRegister:         pl.register,
		model.StageCreateThing:      pl.createThing,
		model.StageAssociate:        pl.associate,
		model.StageRecord:           pl.record,
		model.StageFetchDescriptors: pl.fetchDescriptors,
		model.StageProvision:        pl.provision,
		model.StageFlash:            pl.flash,
	}

	for _, s := range stagePlan() {
		s := s
		handler := handlers[s.stage]

		pl.sm.AddTransition(sw.TransitionRule{
			TransitionType:   s.transition,
			SourceStates:     sw.States{s.source},
			DestinationState: s.dest,
			Condition:        nil,
			Transition: func(task sw.StateSwitch, args sw.TransitionArgs) error {
				hctx, ok := args.(*HandlerContext)
				if !ok {
					return ErrInvalidHandlerContext
				}

				return handler(hctx)
			},
			PostTransition: pl.stageComplete(s.stage),
		})
	}

	return pl
}

// Run commissions the device identified by deviceID through every
// remaining stage and returns the outcome.
//
// A rerun for an identifier with a terminal ledger row short-circuits,
// a row from an earlier partial run resumes from the first incomplete
// stage instead of re-creating cloud resources.
func (p *Pipeline) Run(ctx context.Context, deviceID string) model.Outcome {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return model.Rejected("device identifier is empty")
	}

	le := p.logger.WithField("device_id", deviceID)

	start := stateQueued

	row, err := p.ledger.Get(ctx, deviceID)
	switch {
	case err == nil:
		if row.Status == model.RowStatusActive && row.Stage == model.StageFlash {
			le.Info("device already commissioned, nothing to do")
			metrics.DevicesCounter.WithLabelValues(string(model.OutcomeSuccess)).Inc()

			return model.Success()
		}

		start = resumeState(row)
		le.WithFields(logrus.Fields{
			"row_status":   row.Status,
			"resume_state": string(start),
		}).Info("found earlier run for device, resuming")
	case errors.Is(err, ledger.ErrRowNotFound):
		// first run for this identifier
	default:
		metrics.DevicesCounter.WithLabelValues(string(model.OutcomeRejected)).Inc()

		return model.Rejected("inventory ledger lookup failed: " + err.Error())
	}

	task := model.NewTask(deviceID, start)
	if row != nil {
		task.WirelessDevice = model.WirelessDeviceRecord{ID: row.WirelessDeviceID, Arn: row.WirelessDeviceArn}
		task.Thing = model.ThingRecord{Arn: row.ThingArn}
	}

	plan := stagePlan()

	idx := 0
	for i, s := range plan {
		if s.source == start {
			idx = i
			break
		}
	}

	for i := idx; i < len(plan); i++ {
		s := plan[i]

		// operator interrupts abort between stages, never mid-stage
		if cerr := ctx.Err(); cerr != nil {
			completed := p.completedStage(task)
			le.WithField("last_completed_stage", string(completed)).Warn("run canceled by operator")
			p.markFailed(task, completed, cerr)
			metrics.DevicesCounter.WithLabelValues(string(model.OutcomePartialFailure)).Inc()

			return model.PartialFailure(completed, cerr)
		}

		le.WithField("stage", string(s.stage)).Info("running commissioning stage")

		startTS := time.Now()

		if serr := p.sm.Run(s.transition, task, &HandlerContext{Ctx: ctx, Task: task}); serr != nil {
			metrics.StageCounter.WithLabelValues(string(s.stage), "failed").Inc()
			p.markFailed(task, p.completedStage(task), serr)
			metrics.DevicesCounter.WithLabelValues(string(model.OutcomePartialFailure)).Inc()

			return model.PartialFailure(s.stage, serr)
		}

		metrics.StageCounter.WithLabelValues(string(s.stage), "succeeded").Inc()
		metrics.ObserveStageRunTime(string(s.stage), startTS)
	}

	task.CompletedAt = time.Now()
	task.Status.Append("device commissioned")
	le.Info("device commissioned")
	metrics.DevicesCounter.WithLabelValues(string(model.OutcomeSuccess)).Inc()

	return model.Success()
}

// stageComplete returns the PostTransition handler logging and
// recording stage completion on the task status record.
func (p *Pipeline) stageComplete(stage model.Stage) func(sw.StateSwitch, sw.TransitionArgs) error {
	return func(task sw.StateSwitch, args sw.TransitionArgs) error {
		hctx, ok := args.(*HandlerContext)
		if !ok {
			return ErrInvalidHandlerContext
		}

		hctx.Task.Status.Append("completed stage: " + string(stage))
		p.logger.WithFields(logrus.Fields{
			"device_id": hctx.Task.DeviceID,
			"stage":     string(stage),
		}).Debug("commissioning stage complete")

		return nil
	}
}

// completedStage maps the task state to the last stage whose side
// effects exist. A register whose cloud call succeeded but whose
// checkpoint write failed still counts, the cloud resource is durable.
func (p *Pipeline) completedStage(task *model.Task) model.Stage {
	switch task.State() {
	case stateRegistered:
		return model.StageRegister
	case stateThingCreated:
		return model.StageCreateThing
	case stateAssociated:
		return model.StageAssociate
	case stateRecorded:
		return model.StageRecord
	case stateDescriptorsFetched:
		return model.StageFetchDescriptors
	case stateProvisioned:
		return model.StageProvision
	case stateFlashed:
		return model.StageFlash
	}

	if task.WirelessDevice.ID != "" {
		return model.StageRegister
	}

	return ""
}

// markFailed moves the task to the failed state and overwrites the
// inventory row with a partial checkpoint so a rerun can resume. The
// row write is detached from the run context, the context may already
// be canceled.
func (p *Pipeline) markFailed(task *model.Task, completed model.Stage, cause error) {
	_ = task.SetState(stateFailed)
	task.Status.Append("commissioning failed")
	task.Status.Append(cause.Error())

	// no cloud resource exists yet, there is nothing to checkpoint
	if task.WirelessDevice.ID == "" {
		return
	}

	row := p.rowForTask(task, model.RowStatusPartial, completed)

	if err := p.ledger.Put(context.Background(), row); err != nil {
		metrics.LedgerErrorCounter.Inc()
		p.logger.WithError(err).WithFields(logrus.Fields{
			"device_id":           task.DeviceID,
			"wireless_device_id":  task.WirelessDevice.ID,
			"wireless_device_arn": task.WirelessDevice.Arn,
		}).Error("cloud resources exist but the partial checkpoint write failed, manual reconciliation required")
	}
}

func (p *Pipeline) rowForTask(task *model.Task, status string, stage model.Stage) *model.InventoryRow {
	return &model.InventoryRow{
		DeviceID:          task.DeviceID,
		WirelessDeviceID:  task.WirelessDevice.ID,
		WirelessDeviceArn: task.WirelessDevice.Arn,
		ThingArn:          task.Thing.Arn,
		CreatedAt:         time.Now().UTC().Format(time.RFC3339),
		Status:            status,
		Stage:             stage,
	}
}

// resumeState derives the state a rerun starts from out of the stage
// checkpoint on an existing inventory row.
func resumeState(row *model.InventoryRow) sw.State {
	switch row.Stage {
	case model.StageRegister:
		return stateRegistered
	case model.StageCreateThing:
		return stateThingCreated
	case model.StageAssociate:
		return stateAssociated
	case model.StageRecord:
		return stateRecorded
	case model.StageFetchDescriptors:
		return stateDescriptorsFetched
	case model.StageProvision:
		return stateProvisioned
	}

	// rows written before stage checkpoints existed: the final row
	// rewrite populated thing_arn, the first checkpoint did not
	if row.ThingArn != "" {
		return stateRecorded
	}

	return stateRegistered
}
