// Package logx configures tickwork's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Library packages decoupled from sink configuration (zero Logger is a no-op)
package logx
