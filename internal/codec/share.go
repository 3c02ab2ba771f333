package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"storybook-server/internal/models"
)

// ShareParam is the query parameter that carries an encoded storybook.
const ShareParam = "story"

// EncodeShare serializes book as url-safe base64 of its UTF-8 JSON.
func EncodeShare(book models.Storybook) (string, error) {
	raw, err := json.Marshal(book)
	if err != nil {
		return "", fmt.Errorf("marshal storybook: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// shareShape detects missing top-level fields, which a plain Storybook
// would silently zero.
type shareShape struct {
	Cover *models.Cover  `json:"cover"`
	Pages *[]models.Page `json:"pages"`
}

// DecodeShare reverses EncodeShare. Padded and standard-alphabet input is
// accepted as well. Any failure wraps models.ErrInvalidShareLink.
func DecodeShare(encoded string) (models.Storybook, error) {
	raw, err := decodeBase64(strings.TrimSpace(encoded))
	if err != nil {
		return models.Storybook{}, fmt.Errorf("%w: %v", models.ErrInvalidShareLink, err)
	}
	if !utf8.Valid(raw) {
		return models.Storybook{}, fmt.Errorf("%w: payload is not valid UTF-8", models.ErrInvalidShareLink)
	}
	return decodeBook(raw, models.ErrInvalidShareLink)
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if strings.ContainsAny(s, "+/") {
		return base64.RawStdEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}

func decodeBook(raw []byte, sentinel error) (models.Storybook, error) {
	var shape shareShape
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&shape); err != nil {
		return models.Storybook{}, fmt.Errorf("%w: %v", sentinel, err)
	}
	if shape.Cover == nil || shape.Pages == nil || *shape.Pages == nil {
		return models.Storybook{}, fmt.Errorf("%w: cover and pages are required", sentinel)
	}
	return models.Storybook{Cover: *shape.Cover, Pages: *shape.Pages}, nil
}

// ShareURL returns base with the encoded book in its ShareParam.
func ShareURL(base string, book models.Storybook) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: base URL: %v", models.ErrInvalidInput, err)
	}
	encoded, err := EncodeShare(book)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(ShareParam, encoded)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExtractShared looks for a shared storybook in location. The returned
// location never carries ShareParam. book is nil when there is no share
// parameter; a present but undecodable parameter yields an error.
func ExtractShared(location string) (book *models.Storybook, stripped string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, location, nil
	}
	q := u.Query()
	if !q.Has(ShareParam) {
		return nil, location, nil
	}
	encoded := q.Get(ShareParam)
	q.Del(ShareParam)
	u.RawQuery = q.Encode()
	stripped = u.String()

	decoded, err := DecodeShare(encoded)
	if err != nil {
		return nil, stripped, err
	}
	return &decoded, stripped, nil
}
