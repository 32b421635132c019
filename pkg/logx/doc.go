// Package logx configures issuebot's structured logging.
//
// logx.Logger is a small wrapper on top of zerolog:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional chat sink (min-level + rate limiting) that posts through the
//     active transport adapter
package logx
