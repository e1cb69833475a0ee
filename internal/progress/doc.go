// Package progress turns the generation worker's unstructured output into a
// monotonic progress percentage and stage label.
//
// Three tiers are tried in order for every line: exact extraction from
// tqdm-style bars and percentage markers, keyword lookup against an ordered
// stage table (longest keyword wins), and a time-based nudge that keeps the
// number moving during quiet stretches. Estimated values are flagged so
// callers can tell heuristics from parsed fact.
package progress
