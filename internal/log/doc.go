// Package log provides structured logging for AnonymityEngine.
//
// It wraps log/slog with a redacting handler that masks control-port
// credentials and other sensitive attribute values, and supports writing
// to a size-rotated log file in addition to stderr.
package log
