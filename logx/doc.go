// Package logx provides leveled logging with environment configuration,
// readable struct formatting for debug output and single-line output for
// AWS CloudWatch.
//
// Environment Variables:
//   - LOG_LEVEL: TRACE, DEBUG, INFO, WARN, ERROR, OFF (default INFO)
//   - LOG_FORMAT: console, cloudwatch, json (default console)
//   - LOG_COLOR: colored level names on the console (default true)
//   - LOG_CALLER: file:line of the caller (default true)
//
// Basic Usage:
//
//	logx.Info("Server starting on port %d", 8080)
//	logx.Error("Delivery %s failed: %v", id, err)
//
// At DEBUG and TRACE, struct arguments are expanded field by field:
//
//	logx.Debug("record: %v", record)
//	logx.DebugStruct("record", record)
//
// Secrets:
//
// Values passed to RegisterSecret are replaced with [REDACTED] in every line
// the package writes, whatever the format. Credentials are registered once at
// startup so an accidental %v of a request or config never leaks them.
package logx
