package ledger

import (
	"context"
	"sync"

	"github.com/edge-toolbox/commissioner/internal/model"
	"github.com/pkg/errors"
)

// MemLedger is an in-memory Ledger for tests and dry runs.
type MemLedger struct {
	mu *sync.RWMutex

	// rows is a map of device IDs to inventory rows
	rows map[string]model.InventoryRow
}

func NewMemLedger() *MemLedger {
	return &MemLedger{rows: map[string]model.InventoryRow{}, mu: &sync.RWMutex{}}
}

func (l *MemLedger) Put(_ context.Context, row *model.InventoryRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rows[row.DeviceID] = *row

	return nil
}

func (l *MemLedger) Get(_ context.Context, deviceID string) (*model.InventoryRow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	row, ok := l.rows[deviceID]
	if !ok {
		return nil, errors.Wrap(ErrRowNotFound, deviceID)
	}

	return &row, nil
}
