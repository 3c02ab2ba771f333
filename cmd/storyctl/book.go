package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"storybook-server/internal/models"
	"storybook-server/internal/narration"
	"storybook-server/internal/pipeline"
)

func readForm(path string) (models.StoryFormData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.StoryFormData{}, fmt.Errorf("read form: %w", err)
	}
	var form models.StoryFormData
	if err := yaml.Unmarshal(data, &form); err != nil {
		return models.StoryFormData{}, fmt.Errorf("%w: parse form %s: %v", models.ErrInvalidInput, path, err)
	}
	return form, nil
}

func readBook(path string) (models.Storybook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Storybook{}, fmt.Errorf("read storybook: %w", err)
	}
	var book models.Storybook
	if err := json.Unmarshal(data, &book); err != nil {
		return models.Storybook{}, fmt.Errorf("%w: parse storybook %s: %v", models.ErrInvalidInput, path, err)
	}
	if err := book.Validate(); err != nil {
		return models.Storybook{}, err
	}
	return book, nil
}

// writeJSON writes v to path, or to w when path is empty or "-".
func writeJSON(w io.Writer, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err = w.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// generateBook runs text generation and illustration to completion,
// reporting every settled slot on progress.
func generateBook(ctx context.Context, p *pipeline.Pipeline, form models.StoryFormData, progress io.Writer) (models.Storybook, error) {
	draft, err := p.GenerateStoryText(ctx, form)
	if err != nil {
		return models.Storybook{}, err
	}
	fmt.Fprintf(progress, "Story %q: %d pages\n", draft.Cover.Title, len(draft.Pages))

	book := pipeline.NewLocalBook(models.NewPlaceholderBook(draft), func(patch models.ImagePatch, _ models.Storybook) {
		switch patch.Op {
		case models.PatchSuccess:
			fmt.Fprintf(progress, "  %s illustrated\n", patch.Slot)
		case models.PatchFailure:
			fmt.Fprintf(progress, "  %s failed\n", patch.Slot)
		}
	})
	stats := p.Illustrate(ctx, draft, book)
	fmt.Fprintf(progress, "Illustrated %d of %d images\n", stats.Succeeded, stats.Requested)

	result, _ := book.Current()
	return result, nil
}

// narrateBook synthesizes the narration of ref and writes it as WAV.
func narrateBook(ctx context.Context, speech narration.SpeechSource, book models.Storybook, ref models.SlotRef, w io.Writer) error {
	text, err := narration.Script(book, ref)
	if err != nil {
		return err
	}
	pcm, err := speech.GenerateSpeech(ctx, text)
	if err != nil {
		return fmt.Errorf("generate speech: %w", err)
	}
	clip, err := narration.DecodeSpeech(pcm)
	if err != nil {
		return err
	}
	return narration.WriteWAV(w, clip)
}

// slotFor maps the --page flag to a slot: 0 is the cover, n is pages[n-1].
func slotFor(page int) models.SlotRef {
	if page <= 0 {
		return models.CoverRef()
	}
	return models.PageRef(page - 1)
}
