package pipeline

import (
	"sync"

	"storybook-server/internal/models"
)

// LocalBook is a Book that lives only in memory and never goes stale. The
// CLI uses it, and it is handy in tests.
type LocalBook struct {
	mu      sync.Mutex
	book    models.Storybook
	onPatch func(models.ImagePatch, models.Storybook)
}

// NewLocalBook wraps book. onPatch, when set, is called under the book's
// lock after every applied patch.
func NewLocalBook(book models.Storybook, onPatch func(models.ImagePatch, models.Storybook)) *LocalBook {
	return &LocalBook{book: book, onPatch: onPatch}
}

func (b *LocalBook) Current() (models.Storybook, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.book, true
}

func (b *LocalBook) Apply(patch models.ImagePatch) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := b.book.Apply(patch)
	if err != nil {
		return false
	}
	b.book = next
	if b.onPatch != nil {
		b.onPatch(patch, next)
	}
	return true
}
