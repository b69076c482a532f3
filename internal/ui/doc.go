// Package ui implements an interactive terminal browser for followed artists using bubbletea's Elm architecture.
//
// The TUI walks through these views:
//  1. [UserListView] : Pick a user
//  2. [ArtistListView] : Browse and filter the artists in their library
//  3. [ArtistView] : Inspect an artist's most recent release
//  4. [ConfirmView] : Confirm a library sync
//  5. [SyncView] : Monitor progress while the library is imported
//  6. [ResultView] : Display the sync summary
//
// Progress updates flow through a channel from the [tasks.LibrarySync] run and arrive as
// messages, so rendering never blocks on the catalog.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, s, y/n, q) with contextual help
// displayed via charmbracelet/bubbles/help.
package ui
