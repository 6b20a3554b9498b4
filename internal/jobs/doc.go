// Package jobs persists build job records in SQLite and tracks the live
// external process handle per job for cancellation.
package jobs
