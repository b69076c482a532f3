package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/observability"
	"github.com/desertthunder/spotifier/internal/services"
	"github.com/desertthunder/spotifier/internal/shared"
)

const defaultScanPageSize = 200

// ScanResult summarizes one release scan.
type ScanResult struct {
	Artists              int   // Stored artists visited
	Matched              int   // Artists present in the snapshot
	Changed              int   // Releases replaced by a newer one
	PlaceholdersResolved int   // Placeholder releases filled from the snapshot
	Flagged              int64 // Pending flags added
	Err                  error
	StartedAt            time.Time
	FinishedAt           time.Time
}

// ReleaseScan compares every stored artist against the catalog's release snapshot.
type ReleaseScan struct {
	artists  ArtistStore
	users    UserStore
	catalog  services.Catalog
	queue    *DetailQueue
	pageSize int
	logger   *log.Logger
	sink     observability.Sink
	metrics  *observability.Metrics

	running sync.Mutex
}

// NewReleaseScan creates a [ReleaseScan]. queue may be nil.
func NewReleaseScan(p Pipeline, queue *DetailQueue, cfg shared.ScanConfig) *ReleaseScan {
	p = p.withDefaults()
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultScanPageSize
	}

	return &ReleaseScan{
		artists:  p.Artists,
		users:    p.Users,
		catalog:  p.Catalog,
		queue:    queue,
		pageSize: pageSize,
		logger:   p.logger("release_scan"),
		sink:     p.Sink,
		metrics:  p.Metrics,
	}
}

// Scan sweeps all stored artists once, with the detail queue paused.
//
// An artist whose snapshot release id is set and differs from the stored one gets the new
// release, and only once that update lands are its trackers flagged. Placeholders are filled
// without flagging. The queue is not asked to re-resolve a replaced release; the snapshot
// entry is the complete release.
// Running Scan again against the same snapshot writes nothing.
//
// A failure aborts the rest of the sweep; the next scheduled scan picks it up.
func (s *ReleaseScan) Scan(ctx context.Context, progress chan<- ProgressUpdate) (ScanResult, error) {
	if !s.running.TryLock() {
		return ScanResult{}, shared.ErrScanInProgress
	}
	defer s.running.Unlock()

	if s.queue != nil {
		s.queue.Pause()
		defer s.queue.Resume()
	}

	result := ScanResult{StartedAt: time.Now()}
	abort := func(err error) (ScanResult, error) {
		result.Err = err
		result.FinishedAt = time.Now()
		s.sink.Report(observability.Event{Kind: observability.KindScanAborted, Err: err})
		s.metrics.ScansTotal.WithLabelValues("failed").Inc()
		return result, err
	}

	snapshot, err := s.catalog.CatalogReleases(ctx)
	if err != nil {
		return abort(err)
	}
	sendProgress(progress, snapshotUpdate(len(snapshot)))

	for artist, err := range s.artists.All(ctx, s.pageSize) {
		if err != nil {
			return abort(err)
		}
		result.Artists++

		rel, ok := snapshot[artist.CatalogID]
		if !ok || rel.IsPlaceholder() {
			continue
		}
		result.Matched++
		if rel.ID == artist.Release.ID {
			continue
		}

		if artist.Release.IsPlaceholder() {
			changed, err := s.artists.UpdateRelease(ctx, artist.ID, rel)
			if err != nil {
				return abort(err)
			}
			if changed {
				result.PlaceholdersResolved++
			}
			continue
		}

		changed, err := s.artists.UpdateRelease(ctx, artist.ID, rel)
		if err != nil {
			return abort(fmt.Errorf("artist %s: %w", artist.ID, err))
		}
		if !changed {
			continue
		}
		result.Changed++
		s.metrics.ReleasesChangedTotal.Inc()
		sendProgress(progress, releaseChangedUpdate(result.Changed, artist, rel))

		n, err := s.users.AddPendingForTrackers(ctx, artist.ID)
		if err != nil {
			return abort(fmt.Errorf("artist %s: %w", artist.ID, err))
		}
		result.Flagged += n
		s.metrics.PendingFlagsTotal.Add(float64(n))
	}

	result.FinishedAt = time.Now()
	s.metrics.ScansTotal.WithLabelValues("completed").Inc()
	s.logger.Info("release scan completed",
		"artists", result.Artists, "changed", result.Changed, "resolved", result.PlaceholdersResolved, "flagged", result.Flagged)
	return result, nil
}
