package unitrie

import "fmt"

// Assert panics with a formatted message if cond is false. Used for
// InvariantViolation-class programmer errors (spec §7) which are never
// expected given a well-formed store and correct internal logic, as
// opposed to ErrMalformedNode and friends which are returned to the
// caller because they can legitimately arise from untrusted input.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
