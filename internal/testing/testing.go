// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/observability"
	"github.com/desertthunder/spotifier/internal/services"
	"github.com/desertthunder/spotifier/internal/shared"
)

// FakeCatalog is an in-memory [services.Catalog].
//
// When ValidToken is set, library requests with any other access token fail with
// [shared.ErrAuthExpired].
type FakeCatalog struct {
	Library     []services.SavedTrack
	ValidToken  string
	PageErrs    map[int]error // keyed by offset
	PageGate    chan struct{} // when set, library requests wait for it to be closed
	Details     map[string]*services.ArtistDetail
	DetailErrs  map[string][]error // returned in order, one per call
	DetailDelay time.Duration
	Snapshot    services.ReleaseSnapshot
	SnapshotErr error
	Profile     *services.Profile

	mu          sync.Mutex
	offsets     []int
	tokens      []string
	detailCalls map[string]int
	inFlight    int
	maxInFlight int
	snapCalls   int
}

// Track builds an available saved track credited to the given artists.
func Track(id string, artists ...services.ArtistRef) services.SavedTrack {
	return services.SavedTrack{ID: id, Name: "track " + id, Artists: artists, AvailableMarkets: []string{"US"}}
}

func (f *FakeCatalog) SavedLibraryPage(ctx context.Context, cred models.Credential, offset, limit int) (*services.LibraryPage, error) {
	if f.PageGate != nil {
		select {
		case <-f.PageGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, offset)
	f.tokens = append(f.tokens, cred.AccessToken)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.ValidToken != "" && cred.AccessToken != f.ValidToken {
		return nil, shared.ErrAuthExpired
	}
	if err, ok := f.PageErrs[offset]; ok {
		return nil, err
	}

	end := min(offset+limit, len(f.Library))
	items := []services.SavedTrack{}
	if offset < end {
		items = append(items, f.Library[offset:end]...)
	}
	return &services.LibraryPage{Items: items, Total: len(f.Library), Offset: offset}, nil
}

func (f *FakeCatalog) ArtistDetail(ctx context.Context, id string) (*services.ArtistDetail, error) {
	f.mu.Lock()
	if f.detailCalls == nil {
		f.detailCalls = make(map[string]int)
	}
	call := f.detailCalls[id]
	f.detailCalls[id]++
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	var err error
	if errs := f.DetailErrs[id]; call < len(errs) {
		err = errs[call]
	}
	detail, ok := f.Details[id]
	delay := f.DetailDelay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrNotFound
	}
	return detail, nil
}

func (f *FakeCatalog) CatalogReleases(ctx context.Context) (services.ReleaseSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapCalls++
	if f.SnapshotErr != nil {
		return nil, f.SnapshotErr
	}
	out := make(services.ReleaseSnapshot, len(f.Snapshot))
	for k, v := range f.Snapshot {
		out[k] = v
	}
	return out, nil
}

// UserProfile returns Profile, or [shared.ErrAuthExpired] when it is nil.
func (f *FakeCatalog) UserProfile(ctx context.Context, cred models.Credential) (*services.Profile, error) {
	if f.Profile == nil {
		return nil, shared.ErrAuthExpired
	}
	p := *f.Profile
	return &p, nil
}

// Offsets returns the offsets of every library request, in order.
func (f *FakeCatalog) Offsets() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.offsets...)
}

// Tokens returns the access token of every library request, in order.
func (f *FakeCatalog) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

// DetailCalls returns how many times detail was requested for id.
func (f *FakeCatalog) DetailCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls[id]
}

// MaxInFlight returns the largest number of concurrent detail requests observed.
func (f *FakeCatalog) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// SnapshotCalls returns how many snapshots were requested.
func (f *FakeCatalog) SnapshotCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapCalls
}

// FakeAuth is a [services.AuthProvider] returning Cred or Err.
type FakeAuth struct {
	Cred models.Credential
	Err  error

	mu    sync.Mutex
	calls int
}

func (f *FakeAuth) Refresh(ctx context.Context, cred models.Credential) (models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return models.Credential{}, f.Err
	}
	return f.Cred, nil
}

// Calls returns the number of refreshes requested.
func (f *FakeAuth) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeMailer records sent messages. FailFor, when set, decides per message whether the send fails.
type FakeMailer struct {
	FailFor func(services.Message) error

	mu   sync.Mutex
	sent []services.Message
}

func (m *FakeMailer) Send(ctx context.Context, msg services.Message) error {
	if m.FailFor != nil {
		if err := m.FailFor(msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns the messages delivered so far.
func (m *FakeMailer) Sent() []services.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]services.Message(nil), m.sent...)
}

// RecordingSink is an [observability.Sink] that keeps every event.
type RecordingSink struct {
	mu     sync.Mutex
	events []observability.Event
}

func (s *RecordingSink) Report(ev observability.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns the reported events.
func (s *RecordingSink) Events() []observability.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]observability.Event(nil), s.events...)
}

// Count returns how many events of kind were reported.
func (s *RecordingSink) Count(kind observability.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
