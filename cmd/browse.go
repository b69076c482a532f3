package main

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/shared"
	"github.com/desertthunder/spotifier/internal/tasks"
	"github.com/desertthunder/spotifier/internal/ui"
	"github.com/urfave/cli/v3"
)

// LibraryBrowse launches the interactive terminal UI for users and their libraries.
func (r *Runner) LibraryBrowse(ctx context.Context, cmd *cli.Command) error {
	// Keep log lines off the terminal while the TUI owns it
	r.logger = r.tuiLogger()

	users, err := r.users()
	if err != nil {
		return err
	}

	var syncer ui.Syncer
	if !cmd.Bool("no-sync") {
		p, err := r.pipeline()
		if err != nil {
			return err
		}
		queue := tasks.NewDetailQueue(p, r.config.Queue)
		queue.Start(ctx)
		syncer = tasks.NewLibrarySync(p, queue, r.config.Catalog)
	}

	model := ui.NewModel(ctx, users, syncer)
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(r.output))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return model.Err()
}

// tuiLogger writes to the configured log file only, or nowhere when none is set.
func (r *Runner) tuiLogger() *log.Logger {
	cfg := r.config.Log
	if cfg.File == "" {
		return shared.NewLogger(io.Discard)
	}
	return shared.NewLogger(shared.NewRotatingFile(cfg))
}
