// Package logx provides a small structured logging facade over zerolog.
//
// It exists so components can hold a value-type Logger that stays live
// across runtime config changes: the Service re-applies sinks and levels,
// and every Logger derived from it picks up the new root atomically.
package logx
