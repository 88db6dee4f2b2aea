package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/profacademy/profacademy/internal/store"
)

// Repository persists the ledger as one JSON blob in a key/value store.
// It serialises updates so concurrent sessions never lose a completion.
type Repository struct {
	mu     sync.Mutex
	kv     store.KVRepo
	logger *zap.Logger
}

// NewRepository creates a repository. logger may be nil.
func NewRepository(kv store.KVRepo, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{kv: kv, logger: logger}
}

// Load returns the stored ledger. Missing, unreadable or corrupt data
// yields an empty ledger; the problem is logged, not returned.
func (r *Repository) Load(ctx context.Context) Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, err := r.load(ctx)
	if err != nil {
		r.logger.Warn("loading progress failed, showing empty", zap.Error(err))
		return Ledger{}
	}
	return l
}

// load reads the stored ledger. Only a failed read is an error: absent or
// corrupt data loads as an empty ledger, since saving over it loses nothing.
func (r *Repository) load(ctx context.Context) (Ledger, error) {
	data, ok, err := r.kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if !ok || len(data) == 0 {
		return Ledger{}, nil
	}
	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		r.logger.Warn("stored progress is corrupt, starting empty", zap.Error(err))
		return Ledger{}, nil
	}
	if l == nil {
		l = Ledger{}
	}
	return l, nil
}

// Save replaces the stored ledger.
func (r *Repository) Save(ctx context.Context, l Ledger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(ctx, l)
}

func (r *Repository) save(ctx context.Context, l Ledger) error {
	if l == nil {
		l = Ledger{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := r.kv.Put(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Update loads the ledger, applies fn and saves the result, all under one
// lock. When the stored ledger cannot be read, fn is not applied and
// nothing is written. The updated ledger is returned even when saving
// fails.
func (r *Repository) Update(ctx context.Context, fn func(Ledger)) (Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	fn(l)
	return l, r.save(ctx, l)
}

// Reset removes the whole ledger.
func (r *Repository) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.kv.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	return nil
}
