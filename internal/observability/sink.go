// Package observability reports pipeline failures and exposes pipeline metrics.
//
// Components never fail loudly on background errors: they hand an [Event] to a [Sink] and move on.
// [Reporter] is the production sink; it logs each event and counts it by kind.
package observability

import (
	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/shared"
)

// Kind classifies a reported failure.
type Kind string

const (
	KindPageFetchFailed Kind = "page_fetch_failed"
	KindRefreshFailed   Kind = "refresh_failed"
	KindSyncAborted     Kind = "sync_aborted"
	KindJobExhausted    Kind = "job_exhausted"
	KindScanAborted     Kind = "scan_aborted"
	KindSendFailed      Kind = "send_failed"
	KindConfirmFailed   Kind = "confirm_failed"
)

// Event describes a failure that was absorbed by a background component.
type Event struct {
	Kind     Kind
	UserID   string
	ArtistID string
	GroupKey string
	Attempts int
	Err      error
}

// Sink receives failure events.
type Sink interface {
	Report(Event)
}

// Reporter logs events and counts them in [Metrics].
type Reporter struct {
	logger  *log.Logger
	metrics *Metrics
}

// NewReporter creates a [Reporter]. metrics may be nil.
func NewReporter(logger *log.Logger, metrics *Metrics) *Reporter {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Reporter{logger: shared.WithLogger(logger, "component", "observability"), metrics: metrics}
}

// Report implements [Sink].
func (r *Reporter) Report(ev Event) {
	kv := []any{"kind", string(ev.Kind)}
	if ev.UserID != "" {
		kv = append(kv, "user", ev.UserID)
	}
	if ev.ArtistID != "" {
		kv = append(kv, "artist", ev.ArtistID)
	}
	if ev.GroupKey != "" {
		kv = append(kv, "group", ev.GroupKey)
	}
	if ev.Attempts > 0 {
		kv = append(kv, "attempts", ev.Attempts)
	}
	if ev.Err != nil {
		kv = append(kv, "err", ev.Err)
	}
	r.logger.Error("pipeline failure", kv...)

	if r.metrics != nil {
		r.metrics.EventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	}
}

// Discard is a [Sink] that drops every event.
type Discard struct{}

func (Discard) Report(Event) {}
