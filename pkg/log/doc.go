/*
Package log provides structured logging for Shepherd using zerolog.

The package wraps zerolog behind a global logger initialized once at
startup via Init, with JSON or console output and a configurable level.
Packages obtain child loggers with WithComponent so every line carries a
component field:

	logger := log.WithComponent("batcher")
	logger.Info().Str("session", name).Msg("session created")

The level can be adjusted at runtime with SetLevel; the options store
applies the logging_level option through it on reload.
*/
package log
