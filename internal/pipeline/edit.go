package pipeline

import (
	"context"
	"fmt"

	"storybook-server/internal/genclient"
	"storybook-server/internal/models"

	"go.uber.org/zap"
)

// EditImage transforms the target image with instruction. The target slot
// shows loading while the request is in flight; on failure it is rolled
// back to its pre-edit state and the error is returned.
func (p *Pipeline) EditImage(ctx context.Context, book Book, target models.ImageEditTarget, instruction string) error {
	if target.ImageURL == "" {
		return fmt.Errorf("%w: %s has no image to edit", models.ErrInvalidEditTarget, target.Ref())
	}
	mimeType, data, err := models.ParseDataURI(target.ImageURL)
	if err != nil {
		return fmt.Errorf("%w: %s image is not decodable: %v", models.ErrInvalidEditTarget, target.Ref(), err)
	}
	if target.MimeType != "" {
		mimeType = target.MimeType
	}

	return p.replaceImage(ctx, book, "edit", target.Ref(), func(ctx context.Context, _ models.SlotImage) (genclient.Image, error) {
		return p.client.EditImage(ctx, genclient.Image{Data: data, MimeType: mimeType}, instruction)
	})
}

// RegenerateImage renders the slot again from its original imagePrompt.
// Failures roll the slot back exactly like EditImage.
func (p *Pipeline) RegenerateImage(ctx context.Context, book Book, ref models.SlotRef) error {
	return p.replaceImage(ctx, book, "regenerate", ref, func(ctx context.Context, slot models.SlotImage) (genclient.Image, error) {
		return p.client.GenerateImage(ctx, slot.ImagePrompt)
	})
}

type imageCall func(ctx context.Context, slot models.SlotImage) (genclient.Image, error)

// replaceImage snapshots the slot, marks it loading, runs call and then
// either stores the result or restores the snapshot.
func (p *Pipeline) replaceImage(ctx context.Context, book Book, op string, ref models.SlotRef, call imageCall) error {
	log := p.logger.With(zap.String("operation", op), zap.Stringer("slot", ref))

	current, ok := book.Current()
	if !ok {
		return ErrStale
	}
	snapshot, err := current.Slot(ref)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidEditTarget, err)
	}
	if snapshot.IsGeneratingImage {
		return fmt.Errorf("%w: %s is still generating", models.ErrInvalidEditTarget, ref)
	}

	if !book.Apply(models.LoadingPatch(ref)) {
		return ErrStale
	}

	img, err := call(ctx, snapshot)
	if err == nil && len(img.Data) == 0 {
		err = fmt.Errorf("%w: %s returned no image", models.ErrMalformedResponse, op)
	}
	if err != nil {
		if !book.Apply(models.RestorePatch(ref, snapshot)) {
			imageOutcomes.WithLabelValues(op, "stale").Inc()
			return ErrStale
		}
		imageOutcomes.WithLabelValues(op, "rollback").Inc()
		log.Warn("Image replacement failed, slot rolled back", zap.Error(err))
		return fmt.Errorf("%s %s: %w", op, ref, err)
	}

	if !book.Apply(models.SuccessPatch(ref, models.DataURI(img.MimeType, img.Data), img.MimeType)) {
		imageOutcomes.WithLabelValues(op, "stale").Inc()
		return ErrStale
	}
	imageOutcomes.WithLabelValues(op, "success").Inc()
	log.Info("Image replaced", zap.String("mime_type", img.MimeType), zap.Int("bytes", len(img.Data)))
	return nil
}
