// Package logx wraps zerolog behind a small Logger/Service pair.
//
// Service owns the sinks (console, optional JSON file) and can swap them at
// runtime via Apply(); Loggers created from a Service stay live across swaps.
package logx
