package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"storybook-server/internal/codec"
	"storybook-server/internal/config"
	"storybook-server/internal/export"
	"storybook-server/internal/genclient"
	"storybook-server/internal/pipeline"
	"storybook-server/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "storyctl",
		Usage: "Generate, share and export illustrated storybooks",
		Commands: []*cli.Command{
			generateCmd(),
			shareCmd(),
			openCmd(),
			exportCmd(),
			narrateCmd(),
		},
	}
}

// backend loads the service configuration and builds a generation client.
// Logs go to stderr so stdout stays clean for piping.
func backend(cmd *cli.Command) (*config.Config, genclient.Client, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if cmd.IsSet("strategy") {
		cfg.IllustrationStrategy = cmd.String("strategy")
	}
	if cmd.IsSet("pacing") {
		cfg.IllustrationPacing = cmd.Duration("pacing")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: "console", OutputPath: "stderr"})
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := genclient.NewClient(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, client, log, nil
}

func generateCmd() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Generate an illustrated storybook from a YAML form",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "form", Usage: "YAML file with the story form", Required: true},
			&cli.StringFlag{Name: "out", Usage: "Output JSON file (default stdout)"},
			&cli.StringFlag{Name: "strategy", Usage: "Illustration strategy: sequential or parallel"},
			&cli.DurationFlag{Name: "pacing", Usage: "Delay between page requests (sequential)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			form, err := readForm(cmd.String("form"))
			if err != nil {
				return err
			}
			cfg, client, log, err := backend(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			p := pipeline.New(client, pipeline.OptionsFromConfig(cfg), log)
			book, err := generateBook(ctx, p, form, cmd.Root().ErrWriter)
			if err != nil {
				return err
			}
			return writeJSON(cmd.Root().Writer, cmd.String("out"), book)
		},
	}
}

func shareCmd() *cli.Command {
	return &cli.Command{
		Name:  "share",
		Usage: "Print a share link for a storybook",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "book", Usage: "Storybook JSON file", Required: true},
			&cli.StringFlag{Name: "base", Usage: "Base URL of the viewer", Value: "http://localhost:8080/"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			book, err := readBook(cmd.String("book"))
			if err != nil {
				return err
			}
			link, err := codec.ShareURL(cmd.String("base"), book)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, link)
			return err
		},
	}
}

func openCmd() *cli.Command {
	return &cli.Command{
		Name:  "open",
		Usage: "Decode the storybook carried by a share link",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "link", Usage: "Share link", Required: true},
			&cli.StringFlag{Name: "out", Usage: "Output JSON file (default stdout)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			book, _, err := codec.ExtractShared(cmd.String("link"))
			if err != nil {
				return err
			}
			if book == nil {
				return errors.New("link has no " + codec.ShareParam + " parameter")
			}
			return writeJSON(cmd.Root().Writer, cmd.String("out"), book)
		},
	}
}

func exportCmd() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export a storybook as a standalone HTML viewer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "book", Usage: "Storybook JSON file", Required: true},
			&cli.StringFlag{Name: "layout", Usage: "portrait or landscape", Value: string(export.LayoutPortrait)},
			&cli.StringFlag{Name: "out", Usage: "Output HTML file", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			layout, err := export.ParseLayout(cmd.String("layout"))
			if err != nil {
				return err
			}
			book, err := readBook(cmd.String("book"))
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := export.WriteHTML(&buf, book, layout); err != nil {
				return err
			}
			return os.WriteFile(cmd.String("out"), buf.Bytes(), 0o644)
		},
	}
}

func narrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "narrate",
		Usage: "Synthesize the narration of one page as a WAV file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "book", Usage: "Storybook JSON file", Required: true},
			&cli.IntFlag{Name: "page", Usage: "Page number, 0 for the cover"},
			&cli.StringFlag{Name: "out", Usage: "Output WAV file", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			book, err := readBook(cmd.String("book"))
			if err != nil {
				return err
			}
			_, client, log, err := backend(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			var buf bytes.Buffer
			if err := narrateBook(ctx, client, book, slotFor(int(cmd.Int("page"))), &buf); err != nil {
				return err
			}
			return os.WriteFile(cmd.String("out"), buf.Bytes(), 0o644)
		},
	}
}
