// Package supervisor launches beatmap generation workers and owns their
// lifecycle: spawning, output collection, progress tracking, cancellation,
// and periodic cleanup. Each worker gets one collector goroutine that is the
// only reader of its output; observers consume through the job store and
// per-job broadcast hubs, never from the process directly.
package supervisor
