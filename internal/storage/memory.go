package storage

import (
	"context"
	"sync"
)

// MemoryUnit serializes units of work with a mutex. In-memory stores mutate
// under their own locks, so exclusion across the whole unit is enough to keep
// multi-store invariants intact in tests.
type MemoryUnit struct {
	mu sync.Mutex
}

// NewMemoryUnit builds an in-memory UnitOfWork.
func NewMemoryUnit() *MemoryUnit {
	return &MemoryUnit{}
}

func (u *MemoryUnit) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(ctx)
}
