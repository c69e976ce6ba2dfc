package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edge-toolbox/commissioner/internal/artifacts"
	"github.com/edge-toolbox/commissioner/internal/fixtures"
	"github.com/edge-toolbox/commissioner/internal/ledger"
	"github.com/edge-toolbox/commissioner/internal/model"
	"github.com/edge-toolbox/commissioner/internal/provision"
	"github.com/edge-toolbox/commissioner/internal/registry"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, p provision.Params) (string, string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.String(1), args.Error(2)
}

type mockFlasher struct {
	mock.Mock
}

func (m *mockFlasher) Flash(ctx context.Context, mfgHexPath, firmwareHexPath string) error {
	args := m.Called(ctx, mfgHexPath, firmwareHexPath)
	return args.Error(0)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Put(ctx context.Context, row *model.InventoryRow) error {
	args := m.Called(ctx, row)
	return args.Error(0)
}

func (m *mockLedger) Get(ctx context.Context, deviceID string) (*model.InventoryRow, error) {
	args := m.Called(ctx, deviceID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*model.InventoryRow), args.Error(1)
}

type testHarness struct {
	registry  *registry.MockClient
	ledger    *ledger.MemLedger
	store     *artifacts.Store
	generator *mockGenerator
	flasher   *mockFlasher
	pipeline  *Pipeline
}

const firmwareHexPath = "/opt/firmware/app.hex"

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{
		registry:  &registry.MockClient{},
		ledger:    ledger.NewMemLedger(),
		store:     artifacts.NewStore(t.TempDir()),
		generator: &mockGenerator{},
		flasher:   &mockFlasher{},
	}

	h.pipeline = New(Params{
		Registry:        h.registry,
		Ledger:          h.ledger,
		Artifacts:       h.store,
		Generator:       h.generator,
		Flasher:         h.flasher,
		DestinationName: fixtures.Destination,
		DeviceProfileID: fixtures.DeviceProfileID,
		FirmwareHexPath: firmwareHexPath,
		Logger:          logrus.NewEntry(logrus.New()),
	})

	return h
}

func thingAttributes() interface{} {
	return mock.MatchedBy(func(attrs map[string]string) bool {
		return attrs["deviceType"] == "sidewalk" && attrs["createdAt"] != ""
	})
}

func (h *testHarness) expectFullRun() {
	h.registry.On("CreateWirelessDevice", mock.Anything, fixtures.DeviceID, fixtures.Destination, fixtures.DeviceProfileID).
		Return(fixtures.WirelessDevice, nil).Once()
	h.registry.On("CreateThing", mock.Anything, fixtures.DeviceID, thingAttributes()).
		Return(fixtures.Thing, nil).Once()
	h.expectPostAssociateStages()
}

func (h *testHarness) expectPostAssociateStages() {
	h.registry.On("Associate", mock.Anything, fixtures.Thing.Arn, fixtures.WirelessDevice.ID).
		Return(nil).Once()
	h.registry.On("GetDeviceProfile", mock.Anything, fixtures.DeviceProfileID).
		Return(fixtures.DeviceProfileDescriptor, nil).Once()
	h.registry.On("GetWirelessDevice", mock.Anything, fixtures.WirelessDevice.ID).
		Return(fixtures.WirelessDeviceDescriptor, nil).Once()
	h.generator.On("Generate", mock.Anything, provision.Params{
		DeviceProfileJSON:  h.store.DeviceProfilePath(fixtures.DeviceID),
		WirelessDeviceJSON: h.store.WirelessDevicePath(fixtures.DeviceID),
		OutputBin:          h.store.MfgBinPath(fixtures.DeviceID),
		OutputHex:          h.store.MfgHexPath(fixtures.DeviceID),
	}).Return(h.store.MfgBinPath(fixtures.DeviceID), h.store.MfgHexPath(fixtures.DeviceID), nil).Once()
	h.flasher.On("Flash", mock.Anything, h.store.MfgHexPath(fixtures.DeviceID), firmwareHexPath).
		Return(nil).Once()
}

func TestRunCommissionsDevice(t *testing.T) {
	h := newTestHarness(t)
	h.expectFullRun()

	outcome := h.pipeline.Run(context.Background(), fixtures.DeviceID)

	require.Equal(t, model.OutcomeSuccess, outcome.State)

	row, err := h.ledger.Get(context.Background(), fixtures.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, model.RowStatusActive, row.Status)
	assert.Equal(t, model.StageFlash, row.Stage)
	assert.Equal(t, fixtures.WirelessDevice.ID, row.WirelessDeviceID)
	assert.Equal(t, fixtures.WirelessDevice.Arn, row.WirelessDeviceArn)
	assert.Equal(t, fixtures.Thing.Arn, row.ThingArn)
	assert.NotEmpty(t, row.CreatedAt)

	// both descriptors persisted under the per-device directory
	for _, path := range []string{
		h.store.DeviceProfilePath(fixtures.DeviceID),
		h.store.WirelessDevicePath(fixtures.DeviceID),
	} {
		b, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(b, &decoded))
		assert.NotEmpty(t, decoded)
	}

	h.registry.AssertExpectations(t)
	h.generator.AssertExpectations(t)
	h.flasher.AssertExpectations(t)
}

func TestRunRejectsEmptyDeviceID(t *testing.T) {
	h := newTestHarness(t)

	for _, deviceID := range []string{"", "   "} {
		outcome := h.pipeline.Run(context.Background(), deviceID)
		assert.Equal(t, model.OutcomeRejected, outcome.State)
	}

	h.registry.AssertNotCalled(t, "CreateWirelessDevice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunShortCircuitsCommissionedDevice(t *testing.T) {
	h := newTestHarness(t)

	err := h.ledger.Put(context.Background(), &model.InventoryRow{
		DeviceID:          fixtures.DeviceID,
		WirelessDeviceID:  fixtures.WirelessDevice.ID,
		WirelessDeviceArn: fixtures.WirelessDevice.Arn,
		ThingArn:          fixtures.Thing.Arn,
		Status:            model.RowStatusActive,
		Stage:             model.StageFlash,
	})
	require.NoError(t, err)

	outcome := h.pipeline.Run(context.Background(), fixtures.DeviceID)

	assert.Equal(t, model.OutcomeSuccess, outcome.State)
	h.registry.AssertNotCalled(t, "CreateWirelessDevice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.registry.AssertNotCalled(t, "CreateThing", mock.Anything, mock.Anything, mock.Anything)
	h.flasher.AssertNotCalled(t, "Flash", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunResumesFromPartialRow(t *testing.T) {
	h := newTestHarness(t)

	// an earlier run failed after createThing, the cloud resources exist
	err := h.ledger.Put(context.Background(), &model.InventoryRow{
		DeviceID:          fixtures.DeviceID,
		WirelessDeviceID:  fixtures.WirelessDevice.ID,
		WirelessDeviceArn: fixtures.WirelessDevice.Arn,
		ThingArn:          fixtures.Thing.Arn,
		Status:            model.RowStatusPartial,
		Stage:             model.StageCreateThing,
	})
	require.NoError(t, err)

	h.expectPostAssociateStages()

	outcome := h.pipeline.Run(context.Background(), fixtures.DeviceID)

	require.Equal(t, model.OutcomeSuccess, outcome.State)

	// no cloud resources are re-created on resume
	h.registry.AssertNotCalled(t, "CreateWirelessDevice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.registry.AssertNotCalled(t, "CreateThing", mock.Anything, mock.Anything, mock.Anything)

	row, err := h.ledger.Get(context.Background(), fixtures.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, model.RowStatusActive, row.Status)
	assert.Equal(t, model.StageFlash, row.Stage)

	h.registry.AssertExpectations(t)
}

func TestRunRegisterFailureLeavesNoRow(t *testing.T) {
	h := newTestHarness(t)

	h.registry.On("CreateWirelessDevice", mock.Anything, fixtures.DeviceID, fixtures.Destination, fixtures.DeviceProfileID).
		Return(model.WirelessDeviceRecord{}, errors.Wrap(registry.ErrRegistry, "ThrottlingException: rate exceeded")).Once()

	outcome := h.pipeline.Run(context.Background(), fixtures.DeviceID)

	require.Equal(t, model.OutcomePartialFailure, outcome.State)
	assert.Equal(t, model.StageRegister, outcome.Stage)
	assert.ErrorIs(t, outcome.Cause, registry.ErrRegistry)

	_, err := h.ledger.Get(context.Background(), fixtures.DeviceID)
	assert.ErrorIs(t, err, ledger.ErrRowNotFound)
}

func TestRunAssociateFailureKeepsIntermediateCheckpoint(t *testing.T) {
	h := newTestHarness(t)

	h.registry.On("CreateWirelessDevice", mock.Anything, fixtures.DeviceID, fixtures.Destination, fixtures.DeviceProfileID).
		Return(fixtures.WirelessDevice, nil).Once()
	h.registry.On("CreateThing", mock.Anything, fixtures.DeviceID, thingAttributes()).
		Return(fixtures.Thing, nil).Once()
	h.registry.On("Associate", mock.Anything, fixtures.Thing.Arn, fixtures.WirelessDevice.ID).
		Return(errors.Wrap(registry.ErrRegistry, "AssociateWirelessDeviceWithThing: AccessDeniedException")).Once()

	outcome := h.pipeline.Run(context.Background(), fixtures.DeviceID)

	require.Equal(t, model.OutcomePartialFailure, outcome.State)
	assert.Equal(t, model.StageAssociate, outcome.Stage)

	// the row does not reflect a completed record, it is a resumable
	// partial checkpoint
	row, err := h.ledger.Get(context.Background(), fixtures.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, model.RowStatusPartial, row.Status)
	assert.Equal(t, model.StageCreateThing, row.Stage)

	h.flasher.AssertNotCalled(t, "Flash", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCheckpointWriteFailure(t *testing.T) {
	// a persistence failure right after registration leaves the cloud
	// resource unrecorded, the run must abort at the register stage
	ml := &mockLedger{}
	ml.On("Get", mock.Anything, fixtures.DeviceID).Return(nil, ledger.ErrRowNotFound).Once()
	ml.On("Put", mock.Anything, mock.Anything).Return(errors.New("dynamodb unavailable"))

	reg := &registry.MockClient{}
	reg.On("CreateWirelessDevice", mock.Anything, fixtures.DeviceID, fixtures.Destination, fixtures.DeviceProfileID).
		Return(fixtures.WirelessDevice, nil).Once()

	pl := New(Params{
		Registry:        reg,
		Ledger:          ml,
		Artifacts:       artifacts.NewStore(t.TempDir()),
		Generator:       &mockGenerator{},
		Flasher:         &mockFlasher{},
		DestinationName: fixtures.Destination,
		DeviceProfileID: fixtures.DeviceProfileID,
		FirmwareHexPath: firmwareHexPath,
		Logger:          logrus.NewEntry(logrus.New()),
	})

	outcome := pl.Run(context.Background(), fixtures.DeviceID)

	require.Equal(t, model.OutcomePartialFailure, outcome.State)
	assert.Equal(t, model.StageRegister, outcome.Stage)

	reg.AssertExpectations(t)
	ml.AssertExpectations(t)
}

func TestRunFlashFailure(t *testing.T) {
	h := newTestHarness(t)

	h.registry.On("CreateWirelessDevice", mock.Anything, fixtures.DeviceID, fixtures.Destination, fixtures.DeviceProfileID).
		Return(fixtures.WirelessDevice, nil).Once()
	h.registry.On("CreateThing", mock.Anything, fixtures.DeviceID, thingAttributes()).
		Return(fixtures.Thing, nil).Once()
	h.registry.On("Associate", mock.Anything, fixtures.Thing.Arn, fixtures.WirelessDevice.ID).
		Return(nil).Once()
	h.registry.On("GetDeviceProfile", mock.Anything, fixtures.DeviceProfileID).
		Return(fixtures.DeviceProfileDescriptor, nil).Once()
	h.registry.On("GetWirelessDevice", mock.Anything, fixtures.WirelessDevice.ID).
		Return(fixtures.WirelessDeviceDescriptor, nil).Once()
	h.generator.On("Generate", mock.Anything, mock.Anything).
		Return(h.store.MfgBinPath(fixtures.DeviceID), h.store.MfgHexPath(fixtures.DeviceID), nil).Once()
	h.flasher.On("Flash", mock.Anything, h.store.MfgHexPath(fixtures.DeviceID), firmwareHexPath).
		Return(errors.New("eraseAll: probe command error")).Once()

	outcome := h.pipeline.Run(context.Background(), fixtures.DeviceID)

	require.Equal(t, model.OutcomePartialFailure, outcome.State)
	assert.Equal(t, model.StageFlash, outcome.Stage)

	// the device can be re-run, resuming at the provision checkpoint
	row, err := h.ledger.Get(context.Background(), fixtures.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, model.RowStatusPartial, row.Status)
	assert.Equal(t, model.StageProvision, row.Stage)
}

func TestRunCanceledBeforeAnyStage(t *testing.T) {
	h := newTestHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := h.pipeline.Run(ctx, fixtures.DeviceID)

	require.Equal(t, model.OutcomePartialFailure, outcome.State)
	assert.Equal(t, model.Stage(""), outcome.Stage)
	assert.ErrorIs(t, outcome.Cause, context.Canceled)

	h.registry.AssertNotCalled(t, "CreateWirelessDevice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
