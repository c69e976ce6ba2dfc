package model

const (
	LogLevelInfo  = 0
	LogLevelDebug = 1
	LogLevelTrace = 2
)

// Stage identifies a commissioning pipeline stage.
//
// Stages are executed strictly in the order listed here, each gated
// on the previous stage having completed.
type Stage string

const (
	StageRegister         Stage = "register"
	StageCreateThing      Stage = "createThing"
	StageAssociate        Stage = "associate"
	StageRecord           Stage = "record"
	StageFetchDescriptors Stage = "fetchDescriptors"
	StageProvision        Stage = "provision"
	StageFlash            Stage = "flash"
)

// Stages returns the commissioning stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageRegister,
		StageCreateThing,
		StageAssociate,
		StageRecord,
		StageFetchDescriptors,
		StageProvision,
		StageFlash,
	}
}

// WirelessDeviceRecord holds the cloud wireless device registry identifiers
// returned when a device is registered.
type WirelessDeviceRecord struct {
	ID  string `json:"wirelessDeviceId"`
	Arn string `json:"wirelessDeviceArn"`
}

// ThingRecord holds the thing registry identity created for a device.
type ThingRecord struct {
	Arn string `json:"thingArn"`
}

const (
	RowStatusActive  = "active"
	RowStatusPartial = "partial"
	RowStatusFailed  = "failed"
)

// InventoryRow is the durable per-device provisioning outcome record.
//
// The field names in the serialized forms are part of the ledger row
// contract and must round-trip unchanged.
type InventoryRow struct {
	DeviceID          string `json:"deviceId" dynamodbav:"deviceId"`
	WirelessDeviceID  string `json:"wireless_device_id" dynamodbav:"wireless_device_id"`
	WirelessDeviceArn string `json:"wireless_device_arn" dynamodbav:"wireless_device_arn"`
	ThingArn          string `json:"thing_arn" dynamodbav:"thing_arn"`
	CreatedAt         string `json:"created_at" dynamodbav:"created_at"`
	Status            string `json:"status" dynamodbav:"status"`

	// Stage is the last commissioning stage completed for this device,
	// it marks the checkpoint a rerun resumes from.
	Stage Stage `json:"stage,omitempty" dynamodbav:"stage,omitempty"`
}

// OutcomeState indicates how a commissioning run ended.
type OutcomeState string

const (
	OutcomeSuccess        OutcomeState = "success"
	OutcomePartialFailure OutcomeState = "partialFailure"
	OutcomeRejected       OutcomeState = "rejected"
)

// Outcome is the result of one commissioning pipeline run.
type Outcome struct {
	State OutcomeState

	// Stage is set on partial failure to the stage that failed.
	Stage Stage

	// Cause is set on partial failure.
	Cause error

	// Reason is set when the run was rejected before any stage ran.
	Reason string
}

func Success() Outcome {
	return Outcome{State: OutcomeSuccess}
}

func PartialFailure(stage Stage, cause error) Outcome {
	return Outcome{State: OutcomePartialFailure, Stage: stage, Cause: cause}
}

func Rejected(reason string) Outcome {
	return Outcome{State: OutcomeRejected, Reason: reason}
}
