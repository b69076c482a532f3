package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/spotifier/internal/formatter"
	"github.com/desertthunder/spotifier/internal/models"
)

// BulkExportOpts contains configuration for bulk library exports.
type BulkExportOpts struct {
	Format     string // Export format: text, csv, markdown, json
	OutputDir  string // Base output directory (default: library_export_{epoch})
	NumWorkers int    // Concurrent workers (default: 4, max: 10)
}

// LibraryExportResult is the outcome of exporting one user's library.
type LibraryExportResult struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Artists int    `json:"artists"`
	File    string `json:"file,omitempty"`
	Success bool   `json:"success"`
	Error   error  `json:"-"`
	Message string `json:"error,omitempty"`
}

// BulkExportResult summarizes a bulk export.
type BulkExportResult struct {
	TotalUsers      int                   `json:"total_users"`
	Successful      int                   `json:"successful"`
	Failed          int                   `json:"failed"`
	OutputDirectory string                `json:"output_directory"`
	ManifestPath    string                `json:"-"`
	Results         []LibraryExportResult `json:"results"`
}

// ExportLibraries writes every user's library to its own file in opts.OutputDir using a
// small worker pool, then writes an export_manifest.json summarizing the results.
//
// A failed user does not stop the export.
func ExportLibraries(ctx context.Context, prog chan<- ProgressUpdate, store LibraryReader, opts BulkExportOpts) (*BulkExportResult, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("library_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.Format == "" {
		opts.Format = formatter.FormatJSON
	}

	users, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		TotalUsers:      len(users),
		OutputDirectory: opts.OutputDir,
		Results:         make([]LibraryExportResult, 0, len(users)),
	}

	jobs := make(chan *models.User)
	results := make(chan LibraryExportResult, len(users))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for user := range jobs {
				results <- exportLibrary(ctx, store, user, opts)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, user := range users {
			select {
			case <-ctx.Done():
				return
			case jobs <- user:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)
		if res.Success {
			result.Successful++
			sendProgress(prog, exportCompletedUpdate(completed, len(users), res.Name))
		} else {
			result.Failed++
			sendProgress(prog, exportFailedUpdate(completed, len(users), res.Name, res.Error))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return result, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

func exportLibrary(ctx context.Context, store LibraryReader, user *models.User, opts BulkExportOpts) LibraryExportResult {
	res := LibraryExportResult{UserID: user.ID, Name: user.DisplayName}
	if res.Name == "" {
		res.Name = user.CatalogUserID
	}

	fail := func(err error) LibraryExportResult {
		res.Error = err
		res.Message = err.Error()
		return res
	}

	artists, err := store.Library(ctx, user.ID)
	if err != nil {
		return fail(fmt.Errorf("failed to load library: %w", err))
	}
	res.Artists = len(artists)

	path := filepath.Join(opts.OutputDir, user.ID+"."+extension(opts.Format))
	if err := formatter.WriteExport(path, opts.Format, user, artists); err != nil {
		return fail(err)
	}
	res.File = path
	res.Success = true
	return res
}

func extension(format string) string {
	switch format {
	case formatter.FormatMarkdown, "md":
		return "md"
	case formatter.FormatText, "txt":
		return "txt"
	default:
		return format
	}
}
