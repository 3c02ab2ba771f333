package genclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"storybook-server/internal/models"
)

const storySystemPrompt = `You are an expert children's storybook author and illustrator.
You write complete storybooks from the user's story request: a cover and a fixed number of pages.
For the cover and for every page you write the story text and a detailed, vivid prompt for the illustrator.
Answer ONLY with a JSON object. Do not wrap it in markdown and do not add any text before or after it.`

// storySchema is the JSON schema the story response must satisfy.
var storySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "cover": {
      "type": "object",
      "properties": {
        "title": {"type": "string"},
        "author": {"type": "string"},
        "imagePrompt": {"type": "string"}
      },
      "required": ["title", "author", "imagePrompt"],
      "additionalProperties": false
    },
    "pages": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "pageNumber": {"type": "integer"},
          "text": {"type": "string"},
          "imagePrompt": {"type": "string"}
        },
        "required": ["pageNumber", "text", "imagePrompt"],
        "additionalProperties": false
      }
    }
  },
  "required": ["cover", "pages"],
  "additionalProperties": false
}`)

// StorySchema returns a copy of the story response schema.
func StorySchema() json.RawMessage {
	out := make(json.RawMessage, len(storySchema))
	copy(out, storySchema)
	return out
}

// BuildStoryPrompt renders the user part of the story request. The form is
// expected to be cleaned already.
func BuildStoryPrompt(form models.StoryFormData) string {
	extra := strings.TrimSpace(form.Extra)
	if extra == "" {
		extra = "none"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a storybook split into a cover and %d pages.\n\n", form.NumPages)
	b.WriteString("Story request:\n")
	fmt.Fprintf(&b, "- Title: %s\n", form.Title)
	fmt.Fprintf(&b, "- Author: %s\n", form.Author)
	fmt.Fprintf(&b, "- Genre: %s\n", form.Genre)
	fmt.Fprintf(&b, "- Tone: %s\n", form.Tone)
	fmt.Fprintf(&b, "- Audience: %s\n", form.Audience)
	fmt.Fprintf(&b, "- Illustration art style: %s\n", form.Style)
	fmt.Fprintf(&b, "- Main characters: %s\n", form.Characters)
	fmt.Fprintf(&b, "- Setting: %s\n", form.Setting)
	fmt.Fprintf(&b, "- Main plot: %s\n", form.Plot)
	fmt.Fprintf(&b, "- Number of pages: %d\n", form.NumPages)
	fmt.Fprintf(&b, "- Additional instructions: %s\n\n", extra)
	b.WriteString("Output rules:\n")
	fmt.Fprintf(&b, "- The story must be engaging and appropriate for the audience (%s).\n", form.Audience)
	b.WriteString("- Every page has one concise paragraph of text.\n")
	fmt.Fprintf(&b, "- Image prompts are descriptive, focus on action, emotion and setting details, follow the art style %q and are optimized for an AI image model.\n", form.Style)
	fmt.Fprintf(&b, "- Pages are numbered with contiguous pageNumber values from 1 to %d.\n", form.NumPages)
	b.WriteString(`- The JSON object has the shape {"cover":{"title","author","imagePrompt"},"pages":[{"pageNumber","text","imagePrompt"}]}.`)
	return b.String()
}
