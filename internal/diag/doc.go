// Package diag defines the diagnostic model shared by the description
// loader, layout planner, marshaller and communication emitter.
//
// # Data model
//
// Diagnostic is the central record:
//
//   - Severity: tri-level enum (Info, Warning, Error) defined in severity.go.
//   - Code: compact numeric identifier (see codes.go) with a stable ID such
//     as LAY2001.
//   - Message: human oriented text; keep it short and actionable.
//   - Primary: a source.Loc naming the description element at fault,
//     e.g. "fs.yaml: fs.read.buf".
//   - Notes: optional secondary locations.
//
// # Reporting
//
// Producers never hold a Bag directly. They receive a Reporter and use
// ReportError / ReportWarning builders:
//
//	diag.ReportError(r, diag.LayOverflow, op.Loc, msg).
//		WithNote(param.Loc, "largest contributor").
//		Emit()
//
// Generation errors are also returned as typed Go errors; the diagnostic is
// the user-facing copy. Rendering lives in internal/diagfmt.
package diag
