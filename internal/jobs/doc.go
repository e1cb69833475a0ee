// Package jobs holds the in-memory record of every supervised worker run:
// the job model and its forward-only status machine, the mutex-guarded
// store that is the single source of truth for job state, and the per-job
// event hub that fans worker output out to any number of stream consumers.
package jobs
