package main

import (
	"context"
	"errors"
	"time"

	"github.com/desertthunder/spotifier/internal/server"
	"github.com/desertthunder/spotifier/internal/tasks"
	"github.com/urfave/cli/v3"
)

func (r *Runner) printProgress(progressCh <-chan tasks.ProgressUpdate, done chan<- struct{}) {
	defer close(done)
	for update := range progressCh {
		switch update.Phase {
		case tasks.FetchSnapshot:
			r.writePlain("📡 %s\n", update.Message)
		case tasks.ScanArtists:
			r.writePlain("   %s\n", update.Message)
		case tasks.GroupPending:
			r.writePlain("\n✉ %s\n", update.Message)
		case tasks.SendNotifications:
			r.writePlain("   %s\n", update.Message)
		}
	}
}

// ScanRun compares every artist with the newest catalog releases; with --notify it also mails.
func (r *Runner) ScanRun(ctx context.Context, cmd *cli.Command) error {
	p, err := r.pipeline()
	if err != nil {
		return err
	}
	scan := tasks.NewReleaseScan(p, nil, r.config.Scan)
	run := tasks.NewDailyRun(scan, tasks.NewNotifier(p), r.logger)

	r.logger.Info("starting release scan", "notify", cmd.Bool("notify"))

	progressCh := make(chan tasks.ProgressUpdate, 100)
	done := make(chan struct{})
	go r.printProgress(progressCh, done)

	result, err := run.Run(ctx, cmd.Bool("notify"), progressCh)
	close(progressCh)
	<-done

	r.writePlain("\n")
	r.writePlainHeader("Scan Complete!")
	r.writeScanSummary(result.Scan)
	if result.Notified {
		r.writeNotifySummary(result.Notify)
	}
	return err
}

// NotifyRun mails every group of users with pending releases.
func (r *Runner) NotifyRun(ctx context.Context, cmd *cli.Command) error {
	p, err := r.pipeline()
	if err != nil {
		return err
	}

	progressCh := make(chan tasks.ProgressUpdate, 100)
	done := make(chan struct{})
	go r.printProgress(progressCh, done)

	result, err := tasks.NewNotifier(p).Notify(ctx, progressCh)
	close(progressCh)
	<-done

	r.writePlain("\n")
	r.writePlainHeader("Notifications Sent")
	r.writeNotifySummary(result)
	return err
}

func (r *Runner) writeScanSummary(result tasks.ScanResult) {
	r.writePlain("Artists scanned: %d\n", result.Artists)
	r.writePlain("New releases: %d\n", result.Changed)
	r.writePlain("Placeholders resolved: %d\n", result.PlaceholdersResolved)
	r.writePlain("Users flagged: %d\n", result.Flagged)
	if result.Err != nil {
		r.writePlain("Aborted: %v\n", result.Err)
	}
}

func (r *Runner) writeNotifySummary(result tasks.NotifyResult) {
	r.writePlain("Groups: %d (%d sent, %d failed)\n", result.Groups, result.Sent, result.Failed)
	r.writePlain("Recipients: %d\n", result.Recipients)
	if result.Skipped > 0 {
		r.writePlain("Skipped %d users without a confirmed email\n", result.Skipped)
	}
}

// Serve runs the detail queue, the daily scheduler and the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	p, err := r.pipeline()
	if err != nil {
		return err
	}

	queue := tasks.NewDetailQueue(p, r.config.Queue)
	librarySync := tasks.NewLibrarySync(p, queue, r.config.Catalog)
	librarySync.OnComplete = func(result tasks.SyncResult) {
		r.logger.Info("library sync finished",
			"user", result.UserID,
			"status", result.Status.String(),
			"assigned", result.Assigned,
			"enqueued", result.Enqueued,
		)
	}
	queue.Start(ctx)

	if !cmd.Bool("no-schedule") {
		scan := tasks.NewReleaseScan(p, queue, r.config.Scan)
		run := tasks.NewDailyRun(scan, tasks.NewNotifier(p), r.logger)
		scheduler, err := tasks.NewScheduler(run, r.config.Schedule, r.logger)
		if err != nil {
			return err
		}
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopped := scheduler.Stop()
			select {
			case <-stopped.Done():
			case <-time.After(30 * time.Second):
				r.logger.Warn("daily run still in progress at shutdown")
			}
		}()
		r.writePlain("→ Next daily run: %s\n", scheduler.Next(time.Now()).Format(time.RFC1123))
	}

	router := server.NewAPIRouter(librarySync, queue, r.registry, r.logger)
	srv := server.New(r.config.Server, router, r.logger)
	r.writePlain("→ Listening on http://%s\n", server.Addr(r.config.Server))

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
