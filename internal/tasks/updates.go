package tasks

import (
	"fmt"

	"github.com/desertthunder/spotifier/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or HTTP layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase (0 when unknown)
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchLibrary Phase = iota
	AssignArtists
	FetchSnapshot
	ScanArtists
	GroupPending
	SendNotifications
	ExportLibrary
)

func (p Phase) String() string {
	switch p {
	case FetchLibrary:
		return "fetch_library"
	case AssignArtists:
		return "assign_artists"
	case FetchSnapshot:
		return "fetch_snapshot"
	case ScanArtists:
		return "scan_artists"
	case GroupPending:
		return "build_groups"
	case SendNotifications:
		return "send_notifications"
	case ExportLibrary:
		return "export_library"
	default:
		return ""
	}
}

// sendProgress delivers u without blocking; updates are dropped when nobody is reading.
func sendProgress(ch chan<- ProgressUpdate, u ProgressUpdate) {
	if ch == nil {
		return
	}
	select {
	case ch <- u:
	default:
	}
}

func libraryPageUpdate(step, offset, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLibrary,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetched saved tracks %d/%d...", offset, total),
	}
}

func assignArtistUpdate(step int, artist *models.Artist, created bool) ProgressUpdate {
	msg := fmt.Sprintf("Assigned %s", artist.Name)
	if created {
		msg = fmt.Sprintf("Discovered %s", artist.Name)
	}
	return ProgressUpdate{
		Phase:   AssignArtists,
		Step:    step,
		Message: msg,
		Data:    artist,
	}
}

func snapshotUpdate(releases int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSnapshot,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetched release snapshot (%d artists)", releases),
	}
}

func releaseChangedUpdate(step int, artist *models.Artist, rel models.Release) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ScanArtists,
		Step:    step,
		Message: fmt.Sprintf("New release for %s: %s", artist.Name, rel.Title),
		Data:    rel,
	}
}

func groupsUpdate(groups []models.PendingGroup) ProgressUpdate {
	return ProgressUpdate{
		Phase:   GroupPending,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Built %d notification groups", len(groups)),
	}
}

func sendUpdate(step, total int, group models.PendingGroup, err error) ProgressUpdate {
	if err != nil {
		return ProgressUpdate{
			Phase:   SendNotifications,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %d recipients: %v", step, total, len(group.Users), err),
		}
	}
	return ProgressUpdate{
		Phase:   SendNotifications,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %d recipients, %d artists", step, total, len(group.Users), len(group.ArtistIDs)),
	}
}

func exportCompletedUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportLibrary,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, name),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportLibrary,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
