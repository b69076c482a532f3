package tasks

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/observability"
	"github.com/desertthunder/spotifier/internal/services"
	"github.com/desertthunder/spotifier/internal/shared"
)

// SyncStatus is the state of a user's most recent library sync.
type SyncStatus int

const (
	SyncIdle SyncStatus = iota
	SyncRunning
	SyncCompleted
	SyncFailed
)

func (s SyncStatus) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncCompleted:
		return "completed"
	case SyncFailed:
		return "failed"
	default:
		return ""
	}
}

// SyncResult summarizes one library sync.
type SyncResult struct {
	UserID     string
	Status     SyncStatus
	Pages      int  // Library pages fetched
	Tracks     int  // Saved tracks seen
	Artists    int  // Distinct eligible artists
	Created    int  // Artists created by this sync
	Assigned   int  // Artists newly added to the user's library
	Enqueued   int  // Detail jobs enqueued
	Refreshed  bool // Whether the credential was refreshed
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

type syncRun struct {
	result SyncResult
	done   chan struct{}
}

// syncPass is the state of one sync call. It is never shared between calls.
type syncPass struct {
	user      *models.User
	cred      models.Credential
	refreshed bool
	seen      map[string]struct{}
}

// LibrarySync imports the artists of a user's saved library.
type LibrarySync struct {
	artists  ArtistStore
	users    UserStore
	catalog  services.Catalog
	auth     services.AuthProvider
	queue    *DetailQueue
	pageSize int
	logger   *log.Logger
	sink     observability.Sink
	metrics  *observability.Metrics

	// OnComplete, when set, is called once after each background sync finishes.
	OnComplete func(SyncResult)

	mu   sync.Mutex
	runs map[string]*syncRun
}

// NewLibrarySync creates a [LibrarySync] that feeds newly discovered artists to queue.
func NewLibrarySync(p Pipeline, queue *DetailQueue, cfg shared.CatalogConfig) *LibrarySync {
	p = p.withDefaults()
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > services.MaxPageSize {
		pageSize = services.MaxPageSize
	}

	return &LibrarySync{
		artists:  p.Artists,
		users:    p.Users,
		catalog:  p.Catalog,
		auth:     p.Auth,
		queue:    queue,
		pageSize: pageSize,
		logger:   p.logger("library_sync"),
		sink:     p.Sink,
		metrics:  p.Metrics,
		runs:     make(map[string]*syncRun),
	}
}

// Sync starts a background sync of the user's library and returns immediately.
//
// Input is validated synchronously. The sync keeps running after ctx is canceled;
// observe it with [LibrarySync.Status], [LibrarySync.Wait] or OnComplete.
func (s *LibrarySync) Sync(ctx context.Context, userID string) (SyncResult, error) {
	if strings.TrimSpace(userID) == "" {
		return SyncResult{}, fmt.Errorf("%w: user id is required", shared.ErrValidation)
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}

	s.mu.Lock()
	if run, ok := s.runs[userID]; ok && run.result.Status == SyncRunning {
		s.mu.Unlock()
		return run.result, fmt.Errorf("%w: user %s", shared.ErrSyncInProgress, userID)
	}
	run := &syncRun{
		result: SyncResult{UserID: userID, Status: SyncRunning, StartedAt: time.Now()},
		done:   make(chan struct{}),
	}
	s.runs[userID] = run
	started := run.result
	s.mu.Unlock()

	go func() {
		result := s.Run(context.WithoutCancel(ctx), user, nil)

		s.mu.Lock()
		run.result = result
		s.mu.Unlock()
		close(run.done)

		if s.OnComplete != nil {
			s.OnComplete(result)
		}
	}()

	return started, nil
}

// Status returns the latest sync result for the user. ok is false when no sync was started.
func (s *LibrarySync) Status(userID string) (SyncResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[userID]
	if !ok {
		return SyncResult{UserID: userID, Status: SyncIdle}, false
	}
	return run.result, true
}

// Wait blocks until the user's current sync finishes or ctx is done.
func (s *LibrarySync) Wait(ctx context.Context, userID string) (SyncResult, error) {
	s.mu.Lock()
	run, ok := s.runs[userID]
	s.mu.Unlock()
	if !ok {
		return SyncResult{}, fmt.Errorf("%w: no sync started for user %s", shared.ErrNotFound, userID)
	}

	select {
	case <-run.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return run.result, nil
	case <-ctx.Done():
		return SyncResult{}, ctx.Err()
	}
}

// Run syncs the user's library in the calling goroutine.
//
// Pages are fetched one after another. A failure stops the sync and is reported; artists
// assigned before it stay assigned.
func (s *LibrarySync) Run(ctx context.Context, user *models.User, progress chan<- ProgressUpdate) SyncResult {
	result := SyncResult{UserID: user.ID, Status: SyncRunning, StartedAt: time.Now()}
	pass := &syncPass{user: user, cred: user.Credential, seen: make(map[string]struct{})}
	logger := s.logger.With("user", user.ID)

	finish := func(err error) SyncResult {
		result.Refreshed = pass.refreshed
		result.FinishedAt = time.Now()
		result.Err = err
		if err != nil {
			result.Status = SyncFailed
			logger.Warn("library sync aborted", "pages", result.Pages, "assigned", result.Assigned, "err", err)
		} else {
			result.Status = SyncCompleted
			logger.Info("library sync completed",
				"pages", result.Pages, "artists", result.Artists, "created", result.Created, "assigned", result.Assigned)
		}
		s.metrics.SyncsTotal.WithLabelValues(result.Status.String()).Inc()
		return result
	}

	if pass.cred.Expired(time.Now()) {
		if err := s.refresh(ctx, pass); err != nil {
			return finish(err)
		}
	}

	for page, err := range s.pages(ctx, pass) {
		if err != nil {
			s.sink.Report(observability.Event{Kind: observability.KindPageFetchFailed, UserID: user.ID, Err: err})
			return finish(err)
		}
		result.Pages++
		sendProgress(progress, libraryPageUpdate(result.Pages, page.Offset+len(page.Items), page.Total))

		for _, track := range page.Items {
			result.Tracks++
			if err := s.discover(ctx, pass, track, &result, progress); err != nil {
				s.sink.Report(observability.Event{Kind: observability.KindSyncAborted, UserID: user.ID, Err: err})
				return finish(err)
			}
		}
	}

	return finish(nil)
}

// pages yields the user's library one page at a time, advancing the offset by the size of
// each returned page until it reaches the reported total.
func (s *LibrarySync) pages(ctx context.Context, pass *syncPass) iter.Seq2[*services.LibraryPage, error] {
	return func(yield func(*services.LibraryPage, error) bool) {
		offset := 0
		for {
			page, err := s.fetch(ctx, pass, offset)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) {
				return
			}

			offset += len(page.Items)
			if len(page.Items) == 0 || offset >= page.Total {
				return
			}
		}
	}
}

// fetch requests one page, refreshing the credential and retrying once on [shared.ErrAuthExpired].
func (s *LibrarySync) fetch(ctx context.Context, pass *syncPass, offset int) (*services.LibraryPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := s.catalog.SavedLibraryPage(ctx, pass.cred, offset, s.pageSize)
	if err == nil || !errors.Is(err, shared.ErrAuthExpired) || pass.refreshed {
		return page, err
	}

	if err := s.refresh(ctx, pass); err != nil {
		return nil, err
	}
	return s.catalog.SavedLibraryPage(ctx, pass.cred, offset, s.pageSize)
}

// refresh replaces the pass credential. It runs at most once per pass.
func (s *LibrarySync) refresh(ctx context.Context, pass *syncPass) error {
	pass.refreshed = true
	if s.auth == nil {
		return fmt.Errorf("%w: no auth provider", shared.ErrRefreshFailed)
	}

	cred, err := s.auth.Refresh(ctx, pass.cred)
	if err != nil {
		s.sink.Report(observability.Event{Kind: observability.KindRefreshFailed, UserID: pass.user.ID, Err: err})
		return err
	}
	pass.cred = cred

	if err := s.users.UpdateCredential(ctx, pass.user.ID, cred); err != nil {
		s.logger.Warn("failed to persist refreshed credential", "user", pass.user.ID, "err", err)
	}
	return nil
}

// discover handles one saved track: the primary artist of an available track is created on
// first sight, queued for detail while unresolved, and assigned to the user.
func (s *LibrarySync) discover(ctx context.Context, pass *syncPass, track services.SavedTrack, result *SyncResult, progress chan<- ProgressUpdate) error {
	ref, ok := track.PrimaryArtist()
	if !ok || !track.Available() {
		return nil
	}
	if _, ok := pass.seen[ref.ID]; ok {
		return nil
	}
	pass.seen[ref.ID] = struct{}{}
	result.Artists++

	artist, created, err := s.artists.UpsertByCatalogID(ctx, ref.ID, ref.Name)
	if err != nil {
		return err
	}
	if created {
		result.Created++
	}
	if (created || artist.Release.IsPlaceholder()) && s.queue != nil {
		if s.queue.Enqueue(artist, nil) {
			result.Enqueued++
		}
	}

	added, err := s.users.AssignArtist(ctx, pass.user.ID, artist.ID)
	if err != nil {
		return err
	}
	if added {
		result.Assigned++
		s.metrics.SyncedArtistTotal.Inc()
	}
	sendProgress(progress, assignArtistUpdate(result.Artists, artist, created))
	return nil
}
