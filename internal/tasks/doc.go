// Package tasks runs the release notification pipeline with real-time progress reporting.
//
// # Engines
//
//  1. [LibrarySync] : imports a user's saved library
//     - Pages through saved tracks strictly in order, one request at a time
//     - Takes the primary artist of each available track, once per sync
//     - Upserts unknown artists with a placeholder release and queues them for detail
//     - Assigns each artist to the user; assignment is idempotent
//     - [LibrarySync.Sync] runs in the background; [LibrarySync.Run] is the synchronous core
//
//  2. [DetailQueue] : resolves artist detail in the background
//     - FIFO, de-duplicated by artist id while a job is queued or running
//     - Explicit [QueueRunning] / [QueuePaused] state
//     - Retries with exponential backoff, then marks the job failed and reports it
//
//  3. [ReleaseScan] : sweeps every stored artist against the catalog release snapshot
//     - Pauses the detail queue for the duration of the sweep
//     - Flags trackers of artists whose release changed; a repeat scan writes nothing
//
//  4. [Notifier] : groups users by identical pending-release sets
//     - One message per group; flags are cleared only after a successful send
//
// [DailyRun] composes the scan and the notifier and [Scheduler] fires it on a cron schedule.
// [ExportLibraries] writes every user's library to disk with a worker pool.
//
// # Progress Reporting
//
// Long operations accept an optional channel of [ProgressUpdate].
// Updates use select with default so a slow reader never blocks the pipeline.
//
// # Failures
//
// Background failures never escape as panics. Each engine returns a result value and hands
// failures to an [observability.Sink]: page fetch failures, refresh failures, exhausted jobs,
// aborted scans and failed sends.
package tasks
