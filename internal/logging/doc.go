// Package logging wraps log/slog with the handlers and attribute helpers used
// across kiln: a console handler for interactive use, a JSON handler for
// machine consumption, and context-derived job/stage fields.
package logging
