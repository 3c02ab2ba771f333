package export

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"storybook-server/internal/models"
)

// Layout is the page orientation of an export.
type Layout string

const (
	LayoutPortrait  Layout = "portrait"
	LayoutLandscape Layout = "landscape"
)

//go:embed templates/viewer.html.tmpl
var templatesFS embed.FS

var viewer = template.Must(template.ParseFS(templatesFS, "templates/viewer.html.tmpl"))

// ParseLayout accepts "portrait" (the default when s is empty) or "landscape".
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(s))) {
	case "", LayoutPortrait:
		return LayoutPortrait, nil
	case LayoutLandscape:
		return LayoutLandscape, nil
	default:
		return "", fmt.Errorf("%w: unknown layout %q", models.ErrInvalidInput, s)
	}
}

type imageView struct {
	Src template.URL
	Alt string
}

type coverView struct {
	Title  string
	Author string
	Image  imageView
}

type pageView struct {
	Number int
	Text   string
	Image  imageView
}

type bookView struct {
	Title  string
	Layout Layout
	Cover  coverView
	Pages  []pageView
}

// WriteHTML renders book as a single self-contained HTML document with
// previous/next navigation. Images must be data URIs; anything else is shown
// as a missing image.
func WriteHTML(w io.Writer, book models.Storybook, layout Layout) error {
	view := bookView{
		Title:  book.Cover.Title,
		Layout: layout,
		Cover: coverView{
			Title:  book.Cover.Title,
			Author: book.Cover.Author,
			Image:  embeddable(book.Cover.ImageURL, book.Cover.ImagePrompt),
		},
		Pages: make([]pageView, len(book.Pages)),
	}
	for i, p := range book.Pages {
		view.Pages[i] = pageView{Number: p.PageNumber, Text: p.Text, Image: embeddable(p.ImageURL, p.ImagePrompt)}
	}
	if err := viewer.Execute(w, view); err != nil {
		return fmt.Errorf("render storybook html: %w", err)
	}
	return nil
}

// embeddable trusts only image data URIs that decode cleanly.
func embeddable(uri, alt string) imageView {
	mimeType, _, err := models.ParseDataURI(uri)
	if err != nil || !strings.HasPrefix(mimeType, "image/") {
		return imageView{Alt: alt}
	}
	return imageView{Src: template.URL(uri), Alt: alt}
}
