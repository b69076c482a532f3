package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/spotifier/internal/formatter"
	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/tasks"
	"github.com/urfave/cli/v3"
)

// LibrarySync imports the artists of the user's saved tracks in the foreground.
func (r *Runner) LibrarySync(ctx context.Context, cmd *cli.Command) error {
	user, err := r.findUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}
	return r.syncLibrary(ctx, user, !cmd.Bool("no-resolve"))
}

// syncLibrary runs one sync pass and, when resolve is set, waits for new artists' details.
func (r *Runner) syncLibrary(ctx context.Context, user *models.User, resolve bool) error {
	p, err := r.pipeline()
	if err != nil {
		return err
	}

	queue := tasks.NewDetailQueue(p, r.config.Queue)
	engine := tasks.NewLibrarySync(p, queue, r.config.Catalog)
	queue.Start(ctx)

	r.logger.Info("starting library sync", "user", user.ID)
	r.writePlain("Syncing library for %s...\n\n", displayName(user))

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchLibrary:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.AssignArtists:
				r.writePlain("   %s\n", update.Message)
			}
		}
	}()

	result := engine.Run(ctx, user, progressCh)
	close(progressCh)
	<-done

	if resolve && result.Enqueued > 0 {
		r.writePlain("\n→ Resolving releases for %d artists...\n", result.Enqueued)
		if err := queue.Wait(ctx); err != nil {
			return err
		}
	}

	r.writePlain("\n")
	r.writePlainHeader("Sync " + result.Status.String())
	r.writePlain("Pages: %d\n", result.Pages)
	r.writePlain("Tracks: %d\n", result.Tracks)
	r.writePlain("Artists: %d (%d new to the catalog, %d new to this library)\n", result.Artists, result.Created, result.Assigned)
	if resolve {
		stats := queue.Stats()
		r.writePlain("Releases resolved: %d, failed: %d\n", stats.Completed, stats.Failed)
	}
	if result.Refreshed {
		r.writePlain("Access token was refreshed\n")
	}

	if result.Err != nil {
		return fmt.Errorf("library sync failed: %w", result.Err)
	}
	return nil
}

// LibraryList prints the artists a user follows in the requested format.
func (r *Runner) LibraryList(ctx context.Context, cmd *cli.Command) error {
	user, err := r.findUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}
	users, err := r.users()
	if err != nil {
		return err
	}

	artists, err := users.Library(ctx, user.ID)
	if err != nil {
		return err
	}

	data, err := formatter.Export(cmd.String("format"), user, artists)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// LibraryExport writes every user's library to its own file.
func (r *Runner) LibraryExport(ctx context.Context, cmd *cli.Command) error {
	users, err := r.users()
	if err != nil {
		return err
	}

	opts := tasks.BulkExportOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			r.writePlain("%s\n", update.Message)
		}
	}()

	result, err := tasks.ExportLibraries(ctx, progressCh, users, opts)
	close(progressCh)
	<-done
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Export Complete!")
	r.writePlain("Users: %d (%d exported, %d failed)\n", result.TotalUsers, result.Successful, result.Failed)
	r.writePlain("Directory: %s\n", result.OutputDirectory)
	r.writePlain("Manifest: %s\n", result.ManifestPath)
	return nil
}
