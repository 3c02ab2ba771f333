package models

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

// DefaultMimeType is assigned to every slot when a book is first instantiated.
const DefaultMimeType = "image/png"

// TextOnlyCover is the cover as produced by text generation.
type TextOnlyCover struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ImagePrompt string `json:"imagePrompt"`
}

// TextOnlyPage is a page as produced by text generation.
type TextOnlyPage struct {
	PageNumber  int    `json:"pageNumber"`
	Text        string `json:"text"`
	ImagePrompt string `json:"imagePrompt"`
}

// TextOnlyStorybook is the draft shown in Preview, before any image exists.
type TextOnlyStorybook struct {
	Cover TextOnlyCover  `json:"cover"`
	Pages []TextOnlyPage `json:"pages"`
}

// SortPages orders pages by pageNumber ascending. The sort is stable so
// duplicated numbers keep the order the model produced.
func (d *TextOnlyStorybook) SortPages() {
	sort.SliceStable(d.Pages, func(i, j int) bool {
		return d.Pages[i].PageNumber < d.Pages[j].PageNumber
	})
}

// Cover is the illustrated cover of a storybook.
type Cover struct {
	Title             string `json:"title"`
	Author            string `json:"author"`
	ImagePrompt       string `json:"imagePrompt"`
	ImageURL          string `json:"imageUrl"`
	IsGeneratingImage bool   `json:"isGeneratingImage"`
	MimeType          string `json:"mimeType,omitempty"`
}

// Page is one illustrated page.
type Page struct {
	PageNumber        int    `json:"pageNumber"`
	Text              string `json:"text"`
	ImagePrompt       string `json:"imagePrompt"`
	ImageURL          string `json:"imageUrl"`
	IsGeneratingImage bool   `json:"isGeneratingImage"`
	MimeType          string `json:"mimeType,omitempty"`
}

// Storybook is a cover plus pages in narrative order.
// Slots are only ever replaced whole (see Apply); a Storybook value handed
// out by the session is never mutated afterwards.
type Storybook struct {
	Cover Cover  `json:"cover"`
	Pages []Page `json:"pages"`
}

// NewPlaceholderBook promotes a draft to a Storybook with every slot loading.
func NewPlaceholderBook(draft TextOnlyStorybook) Storybook {
	book := Storybook{
		Cover: Cover{
			Title:             draft.Cover.Title,
			Author:            draft.Cover.Author,
			ImagePrompt:       draft.Cover.ImagePrompt,
			IsGeneratingImage: true,
			MimeType:          DefaultMimeType,
		},
		Pages: make([]Page, len(draft.Pages)),
	}
	for i, p := range draft.Pages {
		book.Pages[i] = Page{
			PageNumber:        p.PageNumber,
			Text:              p.Text,
			ImagePrompt:       p.ImagePrompt,
			IsGeneratingImage: true,
			MimeType:          DefaultMimeType,
		}
	}
	return book
}

// IsComplete reports whether no image request is in flight.
func (b Storybook) IsComplete() bool {
	if b.Cover.IsGeneratingImage {
		return false
	}
	for _, p := range b.Pages {
		if p.IsGeneratingImage {
			return false
		}
	}
	return true
}

// IsFullyIllustrated reports whether the book is complete and every slot has an image.
func (b Storybook) IsFullyIllustrated() bool {
	if !b.IsComplete() || b.Cover.ImageURL == "" {
		return false
	}
	for _, p := range b.Pages {
		if p.ImageURL == "" {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no slice storage with b.
func (b Storybook) Clone() Storybook {
	out := b
	if b.Pages != nil {
		out.Pages = make([]Page, len(b.Pages))
		copy(out.Pages, b.Pages)
	}
	return out
}

// Validate checks that pages exist and are numbered 1..n in order.
func (b Storybook) Validate() error {
	if b.Pages == nil {
		return fmt.Errorf("%w: storybook has no pages", ErrInvalidInput)
	}
	for i, p := range b.Pages {
		if p.PageNumber != i+1 {
			return fmt.Errorf("%w: page at index %d has pageNumber %d", ErrInvalidInput, i, p.PageNumber)
		}
	}
	return nil
}

// Slot returns the image fields of the referenced slot.
func (b Storybook) Slot(ref SlotRef) (SlotImage, error) {
	switch ref.Kind {
	case SlotCover:
		return SlotImage{
			ImagePrompt:       b.Cover.ImagePrompt,
			ImageURL:          b.Cover.ImageURL,
			MimeType:          b.Cover.MimeType,
			IsGeneratingImage: b.Cover.IsGeneratingImage,
		}, nil
	case SlotPage:
		if ref.Index < 0 || ref.Index >= len(b.Pages) {
			return SlotImage{}, fmt.Errorf("%w: page index %d out of range", ErrInvalidInput, ref.Index)
		}
		p := b.Pages[ref.Index]
		return SlotImage{
			ImagePrompt:       p.ImagePrompt,
			ImageURL:          p.ImageURL,
			MimeType:          p.MimeType,
			IsGeneratingImage: p.IsGeneratingImage,
		}, nil
	default:
		return SlotImage{}, fmt.Errorf("%w: unknown slot kind %q", ErrInvalidInput, ref.Kind)
	}
}

// Apply returns a new Storybook with the patched slot replaced. All other
// slots, and the receiver, are left untouched.
func (b Storybook) Apply(p ImagePatch) (Storybook, error) {
	switch p.Slot.Kind {
	case SlotCover:
		out := b
		out.Cover = p.applyCover(b.Cover)
		return out, nil
	case SlotPage:
		if p.Slot.Index < 0 || p.Slot.Index >= len(b.Pages) {
			return b, fmt.Errorf("%w: page index %d out of range", ErrInvalidInput, p.Slot.Index)
		}
		out := b
		out.Pages = make([]Page, len(b.Pages))
		copy(out.Pages, b.Pages)
		out.Pages[p.Slot.Index] = p.applyPage(b.Pages[p.Slot.Index])
		return out, nil
	default:
		return b, fmt.Errorf("%w: unknown slot kind %q", ErrInvalidInput, p.Slot.Kind)
	}
}

// SlotImage is the illustration state of one slot.
type SlotImage struct {
	ImagePrompt       string
	ImageURL          string
	MimeType          string
	IsGeneratingImage bool
}

// SlotKind distinguishes the cover from pages.
type SlotKind string

const (
	SlotCover SlotKind = "cover"
	SlotPage  SlotKind = "page"
)

// SlotRef addresses a slot. Index is ignored for the cover.
type SlotRef struct {
	Kind  SlotKind `json:"type"`
	Index int      `json:"index"`
}

func (r SlotRef) String() string {
	if r.Kind == SlotCover {
		return "cover"
	}
	return fmt.Sprintf("page[%d]", r.Index)
}

// CoverRef addresses the cover.
func CoverRef() SlotRef { return SlotRef{Kind: SlotCover} }

// PageRef addresses pages[index].
func PageRef(index int) SlotRef { return SlotRef{Kind: SlotPage, Index: index} }

// ImageEditTarget identifies a slot plus a snapshot of its image at selection time.
type ImageEditTarget struct {
	Type     SlotKind `json:"type" binding:"required,oneof=cover page"`
	Index    int      `json:"index" binding:"min=0"`
	ImageURL string   `json:"imageUrl"`
	MimeType string   `json:"mimeType"`
}

// Ref returns the slot the target points at.
func (t ImageEditTarget) Ref() SlotRef {
	return SlotRef{Kind: t.Type, Index: t.Index}
}

// TargetFor snapshots the referenced slot of b as an edit target.
func TargetFor(b Storybook, ref SlotRef) (ImageEditTarget, error) {
	img, err := b.Slot(ref)
	if err != nil {
		return ImageEditTarget{}, err
	}
	return ImageEditTarget{Type: ref.Kind, Index: ref.Index, ImageURL: img.ImageURL, MimeType: img.MimeType}, nil
}

// DataURI builds a data: URI from raw image bytes.
func DataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURI splits a base64 data: URI into its mime type and raw bytes.
func ParseDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || payload == "" {
		return "", nil, fmt.Errorf("data URI has no payload")
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("data URI is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI: %w", err)
	}
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	return mimeType, data, nil
}
