package pipeline

import (
	"context"
	"sync/atomic"

	"storybook-server/internal/config"
	"storybook-server/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// IllustrateStats summarizes one Illustrate run.
type IllustrateStats struct {
	Requested int
	Succeeded int
	Failed    int
	Dropped   int // results that arrived after the book was discarded
}

// slotJob is one image request: which slot, with which prompt.
type slotJob struct {
	ref    models.SlotRef
	prompt string
}

type illustrateRun struct {
	p    *Pipeline
	book Book
	log  *zap.Logger

	requested, succeeded, failed, dropped atomic.Int64
	stale                                 atomic.Bool
}

// Illustrate issues one image request for the cover and one per page of
// draft, patching each result into its own slot of book. book must already
// hold models.NewPlaceholderBook(draft). Per-image failures are absorbed
// as failure patches; Illustrate never fails as a whole.
func (p *Pipeline) Illustrate(ctx context.Context, draft models.TextOnlyStorybook, book Book) IllustrateStats {
	run := &illustrateRun{
		p:    p,
		book: book,
		log:  p.logger.With(zap.String("strategy", p.opts.Strategy), zap.Int("pages", len(draft.Pages))),
	}

	jobs := make([]slotJob, 0, len(draft.Pages)+1)
	jobs = append(jobs, slotJob{ref: models.CoverRef(), prompt: draft.Cover.ImagePrompt})
	for i, page := range draft.Pages {
		jobs = append(jobs, slotJob{ref: models.PageRef(i), prompt: page.ImagePrompt})
	}

	run.log.Info("Illustration started")
	if p.opts.Strategy == config.StrategyParallel {
		run.parallel(ctx, jobs)
	} else {
		run.sequential(ctx, jobs)
	}

	stats := IllustrateStats{
		Requested: int(run.requested.Load()),
		Succeeded: int(run.succeeded.Load()),
		Failed:    int(run.failed.Load()),
		Dropped:   int(run.dropped.Load()),
	}
	run.log.Info("Illustration finished",
		zap.Int("requested", stats.Requested),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("dropped", stats.Dropped))
	return stats
}

// sequential handles the cover and then the pages strictly in order,
// waiting Pacing between requests.
func (r *illustrateRun) sequential(ctx context.Context, jobs []slotJob) {
	limit := rate.Inf
	if r.p.opts.Pacing > 0 {
		limit = rate.Every(r.p.opts.Pacing)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, job := range jobs {
		if r.stale.Load() {
			// nobody is looking at this book any more
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			r.patch(job.ref, models.FailurePatch(job.ref), err)
			continue
		}
		r.render(ctx, job)
	}
}

// parallel fires every request at once, bounded by MaxParallel.
func (r *illustrateRun) parallel(ctx context.Context, jobs []slotJob) {
	var g errgroup.Group
	if r.p.opts.MaxParallel > 0 {
		g.SetLimit(r.p.opts.MaxParallel)
	}
	for _, job := range jobs {
		g.Go(func() error {
			r.render(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *illustrateRun) render(ctx context.Context, job slotJob) {
	r.requested.Add(1)
	img, err := r.p.client.GenerateImage(ctx, job.prompt)
	if err != nil {
		r.patch(job.ref, models.FailurePatch(job.ref), err)
		return
	}
	r.patch(job.ref, models.SuccessPatch(job.ref, models.DataURI(img.MimeType, img.Data), img.MimeType), nil)
}

func (r *illustrateRun) patch(ref models.SlotRef, patch models.ImagePatch, cause error) {
	if !r.book.Apply(patch) {
		r.stale.Store(true)
		r.dropped.Add(1)
		imageOutcomes.WithLabelValues("illustrate", "stale").Inc()
		r.log.Debug("Dropped late image result", zap.Stringer("slot", ref))
		return
	}
	if cause != nil {
		r.failed.Add(1)
		imageOutcomes.WithLabelValues("illustrate", "failure").Inc()
		r.log.Warn("Image generation failed", zap.Stringer("slot", ref), zap.Error(cause))
		return
	}
	r.succeeded.Add(1)
	imageOutcomes.WithLabelValues("illustrate", "success").Inc()
}
