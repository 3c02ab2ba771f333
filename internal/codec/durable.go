package codec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storybook-server/internal/models"
	"storybook-server/internal/repository"
)

// DefaultKey is the fixed key of the durable copy.
const DefaultKey = "storybook_saved"

var errCorrupt = errors.New("stored storybook is corrupt")

// DurableStore saves one storybook under a fixed key.
type DurableStore struct {
	kv     repository.Store
	key    string
	logger *zap.Logger
}

// NewDurableStore stores under key, or DefaultKey when key is empty.
func NewDurableStore(kv repository.Store, key string, logger *zap.Logger) *DurableStore {
	if key == "" {
		key = DefaultKey
	}
	return &DurableStore{kv: kv, key: key, logger: logger.Named("DurableStore")}
}

// Save overwrites the durable copy with book.
func (d *DurableStore) Save(ctx context.Context, book models.Storybook) error {
	raw, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", models.ErrStorage, err)
	}
	if err := d.kv.Set(ctx, d.key, raw); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	d.logger.Debug("Storybook saved", zap.String("key", d.key), zap.Int("bytes", len(raw)))
	return nil
}

// Load returns the durable copy, or nil when there is none. A corrupt copy
// is deleted and reported as absent.
func (d *DurableStore) Load(ctx context.Context) (*models.Storybook, error) {
	raw, err := d.kv.Get(ctx, d.key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}

	book, err := decodeBook(raw, errCorrupt)
	if err != nil {
		d.logger.Warn("Discarding corrupt saved storybook", zap.String("key", d.key), zap.Error(err))
		if delErr := d.kv.Delete(ctx, d.key); delErr != nil {
			d.logger.Error("Failed to delete corrupt saved storybook", zap.Error(delErr))
		}
		return nil, nil
	}
	return &book, nil
}

// Clear removes the durable copy.
func (d *DurableStore) Clear(ctx context.Context) error {
	if err := d.kv.Delete(ctx, d.key); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return nil
}
