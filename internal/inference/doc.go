// Package inference models generation request parameters and renders the
// worker's hydra-style command line. Only the submission layer interprets
// these values; the supervisor receives a finished argument vector.
package inference
