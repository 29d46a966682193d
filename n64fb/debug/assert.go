//go:build debug

package debug

import "fmt"

// Enabled is true in builds with the debug tag. Guard checks that cost
// anything with it so release builds drop them.
const Enabled = true

// Assert panics with the formatted message if b is false.
func Assert(b bool, format string, args ...any) {
	if !b {
		panic(fmt.Sprintf(format, args...))
	}
}
