package tasks

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/formatter"
	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/observability"
	"github.com/desertthunder/spotifier/internal/services"
	"github.com/desertthunder/spotifier/internal/shared"
)

// BuildGroups groups users by their pending-release artist set.
//
// Users are grouped by [shared.SetKey], so the order of their pending ids does not matter.
// Users without a confirmed email or without pending releases are left out.
// Groups are sorted by key; users keep their input order.
func BuildGroups(users []*models.User) []models.PendingGroup {
	index := make(map[string]int)
	var groups []models.PendingGroup

	for _, u := range users {
		if !u.Notifiable() || len(u.PendingReleaseArtistIDs) == 0 {
			continue
		}
		key := shared.SetKey(u.PendingReleaseArtistIDs)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, models.PendingGroup{Key: key, ArtistIDs: strings.Split(key, ",")})
		}
		groups[i].Users = append(groups[i].Users, u)
	}

	sort.Slice(groups, func(a, b int) bool { return groups[a].Key < groups[b].Key })
	return groups
}

// NotifyResult summarizes one notification run.
type NotifyResult struct {
	Groups     int   // Distinct pending sets
	Sent       int   // Groups mailed successfully
	Failed     int   // Groups whose send failed
	Recipients int   // Addresses mailed successfully
	Cleared    int64 // Pending flags cleared
	Skipped    int   // Users with pending releases but no confirmed email
}

// Notifier mails each group of users with identical pending releases once.
type Notifier struct {
	artists ArtistStore
	users   UserStore
	mailer  services.Mailer
	logger  *log.Logger
	sink    observability.Sink
	metrics *observability.Metrics
}

// NewNotifier creates a [Notifier].
func NewNotifier(p Pipeline) *Notifier {
	p = p.withDefaults()
	return &Notifier{
		artists: p.Artists,
		users:   p.Users,
		mailer:  p.Mailer,
		logger:  p.logger("notifier"),
		sink:    p.Sink,
		metrics: p.Metrics,
	}
}

// Notify sends one message per pending group.
//
// A group's flags are cleared only after its send succeeds. A failed send is reported and
// leaves the group's flags in place for the next run; other groups are unaffected.
func (n *Notifier) Notify(ctx context.Context, progress chan<- ProgressUpdate) (NotifyResult, error) {
	var result NotifyResult

	pending, err := n.users.ListPending(ctx)
	if err != nil {
		return result, err
	}

	groups := BuildGroups(pending)
	result.Groups = len(groups)
	for _, u := range pending {
		if !u.Notifiable() {
			result.Skipped++
		}
	}
	sendProgress(progress, groupsUpdate(groups))

	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := n.send(ctx, group); err != nil {
			result.Failed++
			n.metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			n.sink.Report(observability.Event{Kind: observability.KindSendFailed, GroupKey: group.Key, Err: err})
			sendProgress(progress, sendUpdate(i+1, len(groups), group, err))
			continue
		}
		result.Sent++
		result.Recipients += len(group.Users)
		n.metrics.NotificationsTotal.WithLabelValues("sent").Inc()

		cleared, err := n.users.ClearPending(ctx, group.UserIDs(), group.ArtistIDs)
		if err != nil {
			n.logger.Error("failed to clear pending releases after send", "group", group.Key, "err", err)
		}
		result.Cleared += cleared
		sendProgress(progress, sendUpdate(i+1, len(groups), group, nil))
	}

	n.logger.Info("notifications sent", "groups", result.Groups, "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

func (n *Notifier) send(ctx context.Context, group models.PendingGroup) error {
	artists, err := n.artists.GetMany(ctx, group.ArtistIDs)
	if err != nil {
		return err
	}

	return n.mailer.Send(ctx, services.Message{
		Recipients: group.Recipients(),
		Subject:    formatter.ReleaseSubject(artists),
		Body:       formatter.ReleaseBody(artists),
		Artists:    artists,
	})
}

// DailyResult summarizes one [DailyRun].
type DailyResult struct {
	Scan       ScanResult
	Notify     NotifyResult
	Notified   bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// DailyRun scans for new releases and then mails the pending groups.
type DailyRun struct {
	scan     *ReleaseScan
	notifier *Notifier
	logger   *log.Logger
}

// NewDailyRun creates a [DailyRun].
func NewDailyRun(scan *ReleaseScan, notifier *Notifier, logger *log.Logger) *DailyRun {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &DailyRun{scan: scan, notifier: notifier, logger: shared.WithLogger(logger, "component", "daily_run")}
}

// Run scans and, when sendEmails is set, notifies.
//
// Flags written before a scan aborts are still delivered. Nothing is sent when another
// scan is in progress.
func (d *DailyRun) Run(ctx context.Context, sendEmails bool, progress chan<- ProgressUpdate) (DailyResult, error) {
	result := DailyResult{StartedAt: time.Now()}

	scan, scanErr := d.scan.Scan(ctx, progress)
	result.Scan = scan
	if errors.Is(scanErr, shared.ErrScanInProgress) {
		result.FinishedAt = time.Now()
		return result, scanErr
	}

	if sendEmails {
		notify, err := d.notifier.Notify(ctx, progress)
		result.Notify = notify
		result.Notified = true
		if err != nil {
			result.FinishedAt = time.Now()
			return result, errors.Join(scanErr, err)
		}
	}

	result.FinishedAt = time.Now()
	d.logger.Info("daily run finished", "changed", scan.Changed, "notified", result.Notified, "sent", result.Notify.Sent)
	return result, scanErr
}
