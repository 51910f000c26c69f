// Package diag carries the library's free-form, stderr-only diagnostics
// (spec.md §7 "User-visible failure... Stderr carries a free-form
// diagnostic"); its callers are pkg/blkz's unsupported-compressor
// warnings. It is
// deliberately not a structured logging framework - nothing in this module
// has a caller who configures log levels or sinks, so there is no
// third-party logger to wire in; see DESIGN.md.
package diag

import (
	"fmt"
	"os"
)

// Warnf writes a warning line to stderr, prefixed consistently so it's
// greppable ("blkz: ...").
func Warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "blkz: "+format+"\n", args...)
}
