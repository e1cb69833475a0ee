// Package cache mirrors job progress, metadata, and output listings into a
// SQLite key-value table so queries survive in-memory eviction and daemon
// restarts. The mirror is strictly best-effort: one probe at startup decides
// active or disabled, and every later failure is absorbed into a miss.
package cache
