package ui

import (
	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/tasks"
)

type usersFetchedMsg struct {
	users []*models.User
	err   error
}

type libraryFetchedMsg struct {
	artists []*models.Artist
	err     error
}

type progressUpdateMsg tasks.ProgressUpdate

type syncCompleteMsg struct {
	result tasks.SyncResult
}
