// Package logger provides named loggers for all packages of this module.
//
// Loggers are created lazily via GetLogger and share a common console
// format. Each logger has its own level that can be adjusted at runtime,
// and SetAllLevels applies a configured level across the board (used by
// the serve command's --log-level flag).
//
// The implementation is a thin facade over go.uber.org/zap; packages only
// see the ILogger interface so the backend can be swapped without touching
// call sites.
package logger
