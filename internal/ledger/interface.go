package ledger

import (
	"context"

	"github.com/edge-toolbox/commissioner/internal/model"
	"github.com/pkg/errors"
)

var (
	ErrRowNotFound = errors.New("inventory row not found")
	ErrLedger      = errors.New("inventory ledger error")
)

// Ledger is the durable per-device provisioning record store.
//
// Put is an unconditional upsert keyed by device identifier, last write
// wins. The pipeline is the sole writer.
type Ledger interface {
	Put(ctx context.Context, row *model.InventoryRow) error
	Get(ctx context.Context, deviceID string) (*model.InventoryRow, error)
}
