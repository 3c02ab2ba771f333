package narration

import (
	"fmt"

	"storybook-server/internal/models"
)

// Script returns the text read aloud for ref: the title and author for the
// cover, the page text otherwise.
func Script(book models.Storybook, ref models.SlotRef) (string, error) {
	if ref.Kind == models.SlotCover {
		return fmt.Sprintf("Title: %s. By %s", book.Cover.Title, book.Cover.Author), nil
	}
	if _, err := book.Slot(ref); err != nil {
		return "", err
	}
	return book.Pages[ref.Index].Text, nil
}
