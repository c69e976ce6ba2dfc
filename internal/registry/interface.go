package registry

import (
	"context"

	"github.com/edge-toolbox/commissioner/internal/model"
	"github.com/pkg/errors"
)

var (
	// ErrRegistry wraps any remote registry failure, the remote error
	// code and message are carried verbatim in the wrapped message.
	ErrRegistry = errors.New("registry request error")
)

// Client wraps the cloud wireless device registry and thing registry.
//
// Every method is a single remote request with no local retry, remote
// errors are surfaced to the caller wrapped in ErrRegistry. The create
// methods are not idempotent on the remote side, the pipeline must not
// invoke them twice for the same run.
type Client interface {
	// CreateWirelessDevice registers the device on the connectivity
	// network under the given destination and device profile.
	CreateWirelessDevice(ctx context.Context, name, destination, profileID string) (model.WirelessDeviceRecord, error)

	// CreateThing creates the thing registry identity for the device.
	CreateThing(ctx context.Context, name string, attributes map[string]string) (model.ThingRecord, error)

	// Associate links the thing to the wireless device.
	Associate(ctx context.Context, thingArn, wirelessDeviceID string) error

	// GetDeviceProfile fetches the device profile descriptor, the
	// returned value is the raw JSON-serializable registry response.
	GetDeviceProfile(ctx context.Context, profileID string) (interface{}, error)

	// GetWirelessDevice fetches the wireless device descriptor.
	GetWirelessDevice(ctx context.Context, wirelessDeviceID string) (interface{}, error)
}
