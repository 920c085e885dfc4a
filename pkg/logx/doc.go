// Package logx configures taskbeat's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Named loggers with runtime level overrides (served by /actuator/loggers)
//   - Optional stderr mirror for errors (rate limited)
package logx
