// Package logging provides a process-wide structured logger for recordstore.
//
// The package wraps [log/slog] and exposes a single global logger instance
// that is initialized once and then retrieved via GetLogger. Record managers,
// the paged file layer and the tools obtain their loggers through this
// package so that log level and output destination are controlled from a
// single place.
//
// # Initialisation
//
//	if err := logging.Init(logging.Config{Level: logging.LevelDebug, Format: "json"}); err != nil {
//	    log.Fatal(err)
//	}
//
// InitDefault writes INFO-level text logs to stdout. SetLevel adjusts the
// level of an already initialized logger.
//
// # Context helpers
//
//	log := logging.WithTable(path)              // adds table field
//	log := logging.WithBlock(path, id)          // adds table and block fields
//	log := logging.WithTableComponent(path, c)  // adds table and component fields
package logging
