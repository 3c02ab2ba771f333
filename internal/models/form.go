package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxPages is the upper bound on numPages when none is configured.
const DefaultMaxPages = 25

var validate = validator.New(validator.WithRequiredStructEnabled())

// StoryFormData is the user input that seeds a storybook.
type StoryFormData struct {
	Title      string `json:"title" yaml:"title" validate:"required"`
	Genre      string `json:"genre" yaml:"genre" validate:"required"`
	Tone       string `json:"tone" yaml:"tone" validate:"required"`
	Characters string `json:"characters" yaml:"characters" validate:"required"`
	Setting    string `json:"setting" yaml:"setting" validate:"required"`
	Plot       string `json:"plot" yaml:"plot" validate:"required"`
	NumPages   int    `json:"numPages" yaml:"numPages" validate:"min=1"`
	Audience   string `json:"audience" yaml:"audience" validate:"required"`
	Style      string `json:"style" yaml:"style" validate:"required"`
	Author     string `json:"author" yaml:"author" validate:"required"`
	Extra      string `json:"extra" yaml:"extra"`
}

// Validate checks that every required field is populated and that
// NumPages is within [1, maxPages]. maxPages <= 0 means DefaultMaxPages.
func (f StoryFormData) Validate(maxPages int) error {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return fmt.Errorf("%w: missing or invalid fields: %s", ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if f.NumPages > maxPages {
		return fmt.Errorf("%w: numPages %d exceeds limit %d", ErrInvalidInput, f.NumPages, maxPages)
	}
	return nil
}

// Cleaned returns a copy with the display prefix (an emoji and a space)
// removed from genre, tone, audience and style.
func (f StoryFormData) Cleaned() StoryFormData {
	f.Genre = StripDisplayPrefix(f.Genre)
	f.Tone = StripDisplayPrefix(f.Tone)
	f.Audience = StripDisplayPrefix(f.Audience)
	f.Style = StripDisplayPrefix(f.Style)
	return f
}

// StripDisplayPrefix drops a leading decoration token such as "🐉 " from a
// select option. Values whose first token contains a letter or digit are
// plain text and come back unchanged.
func StripDisplayPrefix(s string) string {
	head, rest, found := strings.Cut(s, " ")
	if !found || strings.IndexFunc(head, isWordRune) >= 0 {
		return s
	}
	return rest
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
