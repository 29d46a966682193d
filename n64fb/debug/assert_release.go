//go:build !debug

// Package debug dumps render targets and screens to image files and carries
// the assertions that only fire in builds with the debug tag.
package debug

// Enabled is true in builds with the debug tag. Guard checks that cost
// anything with it so release builds drop them.
const Enabled = false

// Assert panics with the formatted message if b is false. It is a no-op
// without the debug tag.
func Assert(b bool, format string, args ...any) {}
