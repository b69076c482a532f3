package tasks

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/observability"
	"github.com/desertthunder/spotifier/internal/services"
	"github.com/desertthunder/spotifier/internal/shared"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDetailQueue(t *testing.T) {
	t.Run("resolves placeholder release", func(t *testing.T) {
		f := newFixture(t)
		artist := f.artist(t, "cat-1", "")
		f.catalog.Details = map[string]*services.ArtistDetail{
			"cat-1": {ID: "cat-1", RecentRelease: models.Release{ID: "r1", Title: "One", ReleaseDate: "2024-02-02"}},
		}

		q := f.queue(testQueueConfig(1))
		ctx := waitCtx(t)
		q.Start(ctx)

		if !q.Enqueue(artist, nil) {
			t.Fatal("expected enqueue to succeed")
		}
		if err := q.Wait(ctx); err != nil {
			t.Fatalf("wait failed: %v", err)
		}

		stored, _ := f.artists.Get(ctx, artist.ID)
		if stored.Release.ID != "r1" || stored.Release.Title != "One" {
			t.Errorf("expected release r1, got %+v", stored.Release)
		}
		if stats := q.Stats(); stats.Completed != 1 || stats.Failed != 0 || stats.Queued != 0 || stats.Running != 0 {
			t.Errorf("unexpected stats %+v", stats)
		}
		if got := testutil.ToFloat64(f.metrics.QueueJobsTotal.WithLabelValues("completed")); got != 1 {
			t.Errorf("expected 1 completed job metric, got %v", got)
		}
	})

	t.Run("artist without releases keeps placeholder", func(t *testing.T) {
		f := newFixture(t)
		artist := f.artist(t, "quiet", "")
		f.catalog.Details = map[string]*services.ArtistDetail{
			"quiet": {ID: "quiet", RecentRelease: models.PlaceholderRelease()},
		}

		q := f.queue(testQueueConfig(1))
		ctx := waitCtx(t)
		q.Start(ctx)
		q.Enqueue(artist, nil)
		if err := q.Wait(ctx); err != nil {
			t.Fatalf("wait failed: %v", err)
		}

		stored, _ := f.artists.Get(ctx, artist.ID)
		if !stored.Release.IsPlaceholder() {
			t.Errorf("expected placeholder, got %+v", stored.Release)
		}
		if q.Stats().Completed != 1 {
			t.Errorf("expected job to complete, got %+v", q.Stats())
		}
	})

	t.Run("de-duplicates queued artists", func(t *testing.T) {
		f := newFixture(t)
		artist := f.artist(t, "cat-1", "")
		q := f.queue(testQueueConfig(1))

		if !q.Enqueue(artist, nil) {
			t.Fatal("expected first enqueue to succeed")
		}
		if q.Enqueue(artist, nil) {
			t.Error("expected second enqueue to be a no-op")
		}
		if q.Enqueue(&models.Artist{}, nil) || q.Enqueue(nil, nil) {
			t.Error("expected artists without id to be rejected")
		}
		if got := q.Stats().Queued; got != 1 {
			t.Errorf("expected 1 queued job, got %d", got)
		}
	})

	t.Run("runs in FIFO order", func(t *testing.T) {
		f := newFixture(t)
		q := f.queue(testQueueConfig(1))

		var mu sync.Mutex
		var order []string
		handler := func(ctx context.Context, a *models.Artist) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, a.ID)
			return nil
		}

		for _, id := range []string{"a", "b", "c", "d"} {
			q.Enqueue(&models.Artist{ID: id}, handler)
		}

		ctx := waitCtx(t)
		q.Start(ctx)
		if err := q.Wait(ctx); err != nil {
			t.Fatalf("wait failed: %v", err)
		}

		if !slices.Equal(order, []string{"a", "b", "c", "d"}) {
			t.Errorf("expected FIFO order, got %v", order)
		}
	})

	t.Run("re-enqueue after completion", func(t *testing.T) {
		f := newFixture(t)
		q := f.queue(testQueueConfig(1))
		ctx := waitCtx(t)
		q.Start(ctx)

		calls := 0
		handler := func(context.Context, *models.Artist) error { calls++; return nil }
		artist := &models.Artist{ID: "a"}

		q.Enqueue(artist, handler)
		q.Wait(ctx)
		if !q.Enqueue(artist, handler) {
			t.Fatal("expected enqueue after completion to succeed")
		}
		q.Wait(ctx)

		if calls != 2 {
			t.Errorf("expected 2 runs, got %d", calls)
		}
	})

	t.Run("pause holds new jobs", func(t *testing.T) {
		f := newFixture(t)
		q := f.queue(testQueueConfig(1))
		ctx := waitCtx(t)
		q.Start(ctx)

		q.Pause()
		if q.State() != QueuePaused {
			t.Fatalf("expected paused state, got %v", q.State())
		}

		var mu sync.Mutex
		ran := false
		q.Enqueue(&models.Artist{ID: "a"}, func(context.Context, *models.Artist) error {
			mu.Lock()
			defer mu.Unlock()
			ran = true
			return nil
		})

		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		if ran {
			t.Error("expected job not to run while paused")
		}
		mu.Unlock()
		if got := q.Stats().Queued; got != 1 {
			t.Errorf("expected 1 queued job, got %d", got)
		}

		q.Resume()
		if err := q.Wait(ctx); err != nil {
			t.Fatalf("wait failed: %v", err)
		}
		mu.Lock()
		defer mu.Unlock()
		if !ran {
			t.Error("expected job to run after resume")
		}
	})

	t.Run("retries with backoff then succeeds", func(t *testing.T) {
		f := newFixture(t)
		artist := f.artist(t, "flaky", "")
		f.catalog.Details = map[string]*services.ArtistDetail{
			"flaky": {ID: "flaky", RecentRelease: models.Release{ID: "r9", Title: "Nine"}},
		}
		f.catalog.DetailErrs = map[string][]error{
			"flaky": {shared.ErrUpstreamUnavailable, shared.ErrNotFound},
		}

		q := f.queue(testQueueConfig(1))
		var results []JobResult
		q.OnResult = func(r JobResult) { results = append(results, r) }

		ctx := waitCtx(t)
		q.Start(ctx)
		q.Enqueue(artist, nil)
		q.Wait(ctx)

		if len(results) != 1 || results[0].Status != JobCompleted || results[0].Attempts != 3 {
			t.Fatalf("unexpected results %+v", results)
		}
		if f.sink.Count(observability.KindJobExhausted) != 0 {
			t.Error("expected no exhausted events")
		}
	})

	t.Run("marks failed and reports after budget", func(t *testing.T) {
		f := newFixture(t)
		artist := f.artist(t, "missing", "")

		q := f.queue(testQueueConfig(1))
		var results []JobResult
		q.OnResult = func(r JobResult) { results = append(results, r) }

		ctx := waitCtx(t)
		q.Start(ctx)
		q.Enqueue(artist, nil)
		q.Wait(ctx)

		if got := f.catalog.DetailCalls("missing"); got != 3 {
			t.Errorf("expected 3 detail calls, got %d", got)
		}
		if len(results) != 1 || results[0].Status != JobFailed {
			t.Fatalf("expected failed result, got %+v", results)
		}
		events := f.sink.Events()
		if len(events) != 1 || events[0].Kind != observability.KindJobExhausted || events[0].ArtistID != artist.ID || events[0].Attempts != 3 {
			t.Errorf("unexpected events %+v", events)
		}
		if q.Stats().Failed != 1 {
			t.Errorf("expected failed count 1, got %+v", q.Stats())
		}
		stored, _ := f.artists.Get(ctx, artist.ID)
		if !stored.Release.IsPlaceholder() {
			t.Error("expected release to stay a placeholder")
		}
	})

	t.Run("bounds in-flight requests", func(t *testing.T) {
		tc := []struct {
			name        string
			concurrency int
		}{
			{name: "default of one", concurrency: 0},
			{name: "three workers", concurrency: 3},
		}
		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)
				f.catalog.DetailDelay = 5 * time.Millisecond
				f.catalog.Details = map[string]*services.ArtistDetail{}

				q := f.queue(testQueueConfig(tt.concurrency))
				ctx := waitCtx(t)
				q.Start(ctx)

				for i := range 8 {
					id := string(rune('a' + i))
					f.catalog.Details[id] = &services.ArtistDetail{ID: id, RecentRelease: models.Release{ID: "r-" + id}}
				}
				for i := range 8 {
					q.Enqueue(f.artist(t, string(rune('a'+i)), ""), nil)
				}
				q.Wait(ctx)

				limit := max(tt.concurrency, 1)
				if got := f.catalog.MaxInFlight(); got > limit || got < 1 {
					t.Errorf("expected at most %d in-flight requests, got %d", limit, got)
				}
				if got := q.Stats().Completed; got != 8 {
					t.Errorf("expected 8 completed jobs, got %d", got)
				}
			})
		}
	})

	t.Run("status strings", func(t *testing.T) {
		if JobQueued.String() != "queued" || JobFailed.String() != "failed" || QueuePaused.String() != "paused" || QueueRunning.String() != "running" {
			t.Error("unexpected status strings")
		}
	})
}
