package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	UserListView ViewState = iota
	ArtistListView
	ArtistView
	ConfirmView
	SyncView
	ResultView
)

// Store reads the users and libraries shown in the browser.
type Store interface {
	List(ctx context.Context) ([]*models.User, error)
	Library(ctx context.Context, userID string) ([]*models.Artist, error)
}

// Syncer runs one library sync pass, reporting progress on the channel.
type Syncer interface {
	Run(ctx context.Context, user *models.User, progress chan<- tasks.ProgressUpdate) tasks.SyncResult
}

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	view       ViewState
	store      Store
	syncer     Syncer
	width      int
	height     int
	userList   list.Model
	usersReady bool
	artistList list.Model
	libReady   bool
	user       *models.User
	artist     *models.Artist
	progressCh chan tasks.ProgressUpdate
	doneCh     chan tasks.SyncResult
	progress   tasks.ProgressUpdate
	result     *tasks.SyncResult
	err        error
	help       help.Model
	keys       keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, store Store, syncer Syncer) *Model {
	return &Model{
		ctx:    ctx,
		view:   UserListView,
		store:  store,
		syncer: syncer,
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// State returns the current view state.
func (m *Model) State() ViewState { return m.view }

// Init initializes the TUI by loading the users.
func (m *Model) Init() tea.Cmd {
	return m.fetchUsers()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.usersReady {
			m.userList.SetSize(m.listSize())
		}
		if m.libReady {
			m.artistList.SetSize(m.listSize())
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case UserListView:
			return m.handleUserListKeys(msg)
		case ArtistListView:
			return m.handleArtistListKeys(msg)
		case ArtistView:
			return m.handleArtistKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case SyncView:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case usersFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		items := make([]list.Item, len(msg.users))
		for i, u := range msg.users {
			items[i] = userItem{user: u}
		}
		m.userList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.userList.Title = "Users"
		m.userList.SetSize(m.listSize())
		m.usersReady = true
		return m, nil

	case libraryFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = UserListView
			return m, nil
		}
		m.err = nil
		items := make([]list.Item, len(msg.artists))
		for i, a := range msg.artists {
			items[i] = artistItem{artist: a}
		}
		m.artistList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.artistList.Title = fmt.Sprintf("Artists followed by %s", userItem{user: m.user}.Title())
		m.artistList.SetSize(m.listSize())
		m.libReady = true
		m.view = ArtistListView
		return m, nil

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case syncCompleteMsg:
		m.result = &msg.result
		m.progressCh = nil
		m.doneCh = nil
		m.view = ResultView
		return m, nil
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view == UserListView && !m.usersReady {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case UserListView:
		return m.renderUserList()
	case ArtistListView:
		return m.renderArtistList()
	case ArtistView:
		return m.renderArtist()
	case ConfirmView:
		return m.renderConfirm()
	case SyncView:
		return m.renderSync()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

// Err returns the error that ended the session, if any.
func (m *Model) Err() error { return m.err }

func (m *Model) listSize() (int, int) {
	return max(m.width-4, 0), max(m.height-8, 0)
}

func (m *Model) handleUserListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.usersReady {
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.userList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter":
		if item, ok := m.userList.SelectedItem().(userItem); ok {
			m.user = item.user
			return m, m.fetchLibrary()
		}
	}
	return m.updateLists(msg)
}

func (m *Model) handleArtistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.artistList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		if m.artistList.FilterState() == list.FilterApplied {
			break
		}
		m.view = UserListView
		return m, nil
	case "s":
		if m.syncer != nil {
			m.view = ConfirmView
		}
		return m, nil
	case "enter":
		if item, ok := m.artistList.SelectedItem().(artistItem); ok {
			m.artist = item.artist
			m.view = ArtistView
		}
		return m, nil
	}
	return m.updateLists(msg)
}

func (m *Model) handleArtistKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "enter":
		m.view = ArtistListView
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "n", "esc":
		m.view = ArtistListView
		return m, nil
	case "y":
		m.view = SyncView
		return m, m.startSync()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter", "esc":
		m.result = nil
		m.progress = tasks.ProgressUpdate{}
		return m, m.fetchLibrary()
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.view == UserListView && m.usersReady:
		m.userList, cmd = m.userList.Update(msg)
	case m.view == ArtistListView && m.libReady:
		m.artistList, cmd = m.artistList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchUsers() tea.Cmd {
	return func() tea.Msg {
		users, err := m.store.List(m.ctx)
		return usersFetchedMsg{users: users, err: err}
	}
}

func (m *Model) fetchLibrary() tea.Cmd {
	user := m.user
	return func() tea.Msg {
		artists, err := m.store.Library(m.ctx, user.ID)
		return libraryFetchedMsg{artists: artists, err: err}
	}
}

func (m *Model) startSync() tea.Cmd {
	progressCh := make(chan tasks.ProgressUpdate, 50)
	doneCh := make(chan tasks.SyncResult, 1)
	m.progressCh, m.doneCh = progressCh, doneCh

	user := m.user
	go func() {
		result := m.syncer.Run(m.ctx, user, progressCh)
		close(progressCh)
		doneCh <- result
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progressCh, doneCh := m.progressCh, m.doneCh
	return func() tea.Msg {
		if update, ok := <-progressCh; ok {
			return progressUpdateMsg(update)
		}
		return syncCompleteMsg{result: <-doneCh}
	}
}

func (m *Model) renderUserList() string {
	if !m.usersReady {
		return "Loading users..."
	}
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	var errView string
	if m.err != nil {
		errView = "\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	}
	return fmt.Sprintf("%s%s\n\n%s", m.userList.View(), errView, helpView)
}

func (m *Model) renderArtistList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.sync, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.artistList.View(), helpView)
}

func (m *Model) renderArtist() string {
	a := m.artist
	title := styles.title.Render(a.Name)

	var b strings.Builder
	fmt.Fprintf(&b, "Catalog ID: %s\n", a.CatalogID)
	if a.Release.IsPlaceholder() {
		b.WriteString(styles.warn.Render("Most recent release has not been resolved yet"))
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "Most recent release: %s\n", a.Release.Title)
		if a.Release.ReleaseDate != "" {
			fmt.Fprintf(&b, "Released: %s\n", a.Release.ReleaseDate)
		}
	}
	if !a.UpdatedAt.IsZero() {
		b.WriteString(styles.help.Render("Updated " + a.UpdatedAt.Format("2006-01-02 15:04")))
		b.WriteString("\n")
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", title, b.String(), helpView)
}

func (m *Model) renderConfirm() string {
	name := userItem{user: m.user}.Title()
	title := styles.title.Render(fmt.Sprintf("Sync the saved library of %s?", name))
	info := "\nArtists found in saved tracks are added to this library and their releases resolved.\n"

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no})
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderSync() string {
	title := styles.title.Render("Syncing Library")

	var phase string
	switch m.progress.Phase {
	case tasks.FetchLibrary:
		phase = fmt.Sprintf("Fetching saved tracks (page %d)", m.progress.Step)
	case tasks.AssignArtists:
		phase = fmt.Sprintf("Assigning artists (%d so far)", m.progress.Step)
	default:
		phase = "Starting..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, m.progress.Message)
}

func (m *Model) renderResult() string {
	if m.result == nil {
		return styles.err.Render("No result available\n\nPress enter to go back, q to quit")
	}

	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	r := m.result
	if r.Err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Sync failed: %v", r.Err)), helpView)
	}

	title := styles.ok.Render("✓ Sync Complete!")
	info := fmt.Sprintf(
		"\nPages: %d\nTracks: %d\nArtists: %d (%d new to the catalog, %d new to this library)",
		r.Pages, r.Tracks, r.Artists, r.Created, r.Assigned,
	)

	var pending string
	if r.Enqueued > 0 {
		pending = "\n\n" + styles.warn.Render(fmt.Sprintf("Resolving releases for %d artists in the background", r.Enqueued))
	}

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, pending, helpView)
}
