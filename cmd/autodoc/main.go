package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/autodoc/internal/analyzer"
	"git.home.luguber.info/inful/autodoc/internal/config"
	"git.home.luguber.info/inful/autodoc/internal/daemon"
	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
	"git.home.luguber.info/inful/autodoc/internal/logfields"
	"git.home.luguber.info/inful/autodoc/internal/registry"
	"git.home.luguber.info/inful/autodoc/internal/renderer"
	"git.home.luguber.info/inful/autodoc/internal/revision"
	"git.home.luguber.info/inful/autodoc/internal/store"
	"git.home.luguber.info/inful/autodoc/internal/watcher"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"autodoc.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct {
	} `cmd:"" help:"Watch the source directory and serve live documentation"`

	Generate struct {
		Source string `short:"s" help:"Override the configured source directory"`
		Output string `short:"o" help:"Override the configured output directory"`
	} `cmd:"" help:"Generate documentation once and exit"`

	Init struct {
		Force bool `help:"Overwrite an existing configuration file"`
	} `cmd:"" help:"Write a default configuration file"`
}

func main() {
	// A local .env can override environment configuration in development.
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	var err error
	switch ctx.Command() {
	case "serve":
		err = runServe()
	case "generate":
		err = runGenerate()
	case "init":
		err = runInit()
	}
	if err != nil {
		slog.Error("command failed", logfields.Error(err))
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("shutdown signal received")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return d.Stop(stopCtx)
}

// runGenerate performs one batch generation pass without watching.
func runGenerate() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}
	if CLI.Generate.Source != "" {
		cfg.SourceDir = CLI.Generate.Source
	}
	if CLI.Generate.Output != "" {
		cfg.OutputDir = CLI.Generate.Output
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	diff, err := watcher.Scan(cfg.SourceDir, cfg.Watch, registry.New())
	if err != nil {
		return err
	}

	st := store.New(cfg.OutputDir)
	rev, _ := revision.Lookup(cfg.SourceDir)

	var failed int
	for _, path := range diff.Changed {
		if gerr := generateOne(st, path, rev); gerr != nil {
			slog.Error("generation failed", logfields.File(path), logfields.Error(gerr))
			failed++
			continue
		}
		slog.Info("generated", logfields.File(path))
	}

	slog.Info("batch generation complete",
		"total", len(diff.Changed), "generated", len(diff.Changed)-failed, "failed", failed)
	if failed > 0 {
		return ferrors.NewError(ferrors.CategoryRender, "some documents failed to generate").
			WithContext("failed", failed).Build()
	}
	return nil
}

func generateOne(st *store.Store, path, rev string) error {
	content, fingerprint, _, err := registry.ReadAndFingerprint(path)
	if err != nil {
		return err
	}
	model := analyzer.Analyze(path, content)
	body := renderer.Render(model)
	return st.Commit(&store.DocumentArtifact{
		Path:              path,
		Name:              model.Name,
		Model:             model,
		Markdown:          body.Markdown,
		Diagram:           body.Diagram,
		Outline:           body.Outline,
		Fingerprint:       body.Fingerprint,
		SourceFingerprint: fingerprint,
		Revision:          rev,
		GeneratedAt:       time.Now().UTC(),
	})
}

func runInit() error {
	if _, err := os.Stat(CLI.Config); err == nil && !CLI.Init.Force {
		return ferrors.ConfigError("configuration file already exists, use --force to overwrite").
			WithContext("path", CLI.Config).Build()
	}
	if err := config.Write(config.Default(), CLI.Config); err != nil {
		return err
	}
	slog.Info("wrote configuration", "path", CLI.Config)
	return nil
}
