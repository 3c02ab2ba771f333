package pipeline

import (
	"errors"
	"time"

	"storybook-server/internal/config"
	"storybook-server/internal/genclient"
	"storybook-server/internal/models"

	"go.uber.org/zap"
)

// ErrStale is returned when the book an operation was started against has
// been discarded (the session restarted).
var ErrStale = errors.New("operation belongs to a discarded storybook")

// Book is the observed, mutable storybook a pipeline operation patches.
// Implementations bind it to the session token current when the operation
// started; once that token is gone Current reports false and Apply drops
// the patch.
type Book interface {
	Current() (models.Storybook, bool)
	Apply(patch models.ImagePatch) bool
}

// Options selects the illustration strategy.
type Options struct {
	Strategy    string        // config.StrategySequential or config.StrategyParallel
	Pacing      time.Duration // delay between page requests, sequential only
	MaxParallel int           // <= 0 means unbounded, parallel only
	MaxPages    int
}

// OptionsFromConfig extracts pipeline options from the service config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Strategy:    cfg.IllustrationStrategy,
		Pacing:      cfg.IllustrationPacing,
		MaxParallel: cfg.IllustrationMaxParallel,
		MaxPages:    cfg.MaxPages,
	}
}

// Pipeline turns form input into an illustrated storybook and services
// single-image edits.
type Pipeline struct {
	client genclient.Client
	opts   Options
	logger *zap.Logger
}

// New creates a Pipeline.
func New(client genclient.Client, opts Options, logger *zap.Logger) *Pipeline {
	if opts.Strategy == "" {
		opts.Strategy = config.StrategySequential
	}
	return &Pipeline{
		client: client,
		opts:   opts,
		logger: logger.Named("Pipeline"),
	}
}

// Options returns the options the pipeline runs with.
func (p *Pipeline) Options() Options {
	return p.opts
}
