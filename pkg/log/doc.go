// Package log provides structured logging for deque components.
//
// Components obtain a Logger, tag it with a component field, and emit
// level-filtered entries through a formatter/output pipeline:
//
//	logger := log.NewLogger(log.WithLevel(log.InfoLevel))
//	logger = logger.With(log.Component("tubes"))
//	logger.Info("task taken", log.F("tube", name), log.F("id", id))
//
// Formats are JSON (machine consumption) and text (interactive use).
// RedirectStdLog routes standard-library log output (for example Pebble's
// internal logging) through the same pipeline.
package log
