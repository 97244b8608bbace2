package logging

import (
	"log/slog"
)

// WithTable creates a logger with table context.
// The table is identified by the path of its primary file.
//
// Example:
//
//	log := logging.WithTable("data/users.tbl")
//	log.Info("table opened", "organization", "heap")
func WithTable(path string) *slog.Logger {
	return GetLogger().With("table", path)
}

// WithBlock creates a logger with block context.
// Useful for paged file and block layout operations.
//
// Example:
//
//	log := logging.WithBlock(path, blockID)
//	log.Debug("block flushed", "records", n)
func WithBlock(path string, blockID uint64) *slog.Logger {
	return GetLogger().With("table", path, "block", blockID)
}

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("ordered")
//	log.Info("reorganization finished")
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithTableComponent creates a logger carrying both table and component.
// Record managers build one of these when they are created or opened.
func WithTableComponent(path, component string) *slog.Logger {
	return GetLogger().With("table", path, "component", component)
}

// WithError creates a logger with error context.
// Use this when logging errors to include the error in structured format.
//
// Example:
//
//	log := logging.WithError(err)
//	log.Error("operation failed", "operation", "insert")
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
