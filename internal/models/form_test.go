package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validForm() StoryFormData {
	return StoryFormData{
		Title:      "The Lighthouse Fox",
		Genre:      "🦊 Fable",
		Tone:       "😊 Warm",
		Characters: "A fox named Lume",
		Setting:    "A windy coast",
		Plot:       "Lume keeps the light burning through a storm",
		NumPages:   3,
		Audience:   "👶 Ages 3-5",
		Style:      "🎨 Watercolor",
		Author:     "Ana",
	}
}

func TestStoryFormData_Validate(t *testing.T) {
	require.NoError(t, validForm().Validate(0))

	t.Run("missing fields are listed", func(t *testing.T) {
		f := validForm()
		f.Plot = ""
		f.Style = ""
		err := f.Validate(0)
		require.ErrorIs(t, err, ErrInvalidInput)
		assert.Contains(t, err.Error(), "Plot")
		assert.Contains(t, err.Error(), "Style")
	})

	t.Run("page count bounds", func(t *testing.T) {
		f := validForm()
		f.NumPages = 0
		assert.ErrorIs(t, f.Validate(0), ErrInvalidInput)

		f.NumPages = 26
		assert.ErrorIs(t, f.Validate(0), ErrInvalidInput)

		f.NumPages = 10
		assert.ErrorIs(t, f.Validate(8), ErrInvalidInput)
		assert.NoError(t, f.Validate(10))
	})

	t.Run("extra is optional", func(t *testing.T) {
		f := validForm()
		f.Extra = ""
		assert.NoError(t, f.Validate(0))
	})
}

func TestStripDisplayPrefix(t *testing.T) {
	cases := map[string]string{
		"🐉 Fantasy adventure": "Fantasy adventure",
		"✨ Magical":           "Magical",
		"Fantasy adventure":   "Fantasy adventure",
		"Watercolor":          "Watercolor",
		"":                    "",
		"🎨":                   "🎨",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripDisplayPrefix(in), "input %q", in)
	}
}

func TestStoryFormData_Cleaned(t *testing.T) {
	f := validForm()
	c := f.Cleaned()

	assert.Equal(t, "Fable", c.Genre)
	assert.Equal(t, "Warm", c.Tone)
	assert.Equal(t, "Ages 3-5", c.Audience)
	assert.Equal(t, "Watercolor", c.Style)
	assert.Equal(t, f.Title, c.Title)
	assert.Equal(t, "🦊 Fable", f.Genre, "receiver must not change")
}
