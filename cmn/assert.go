// Package cmn provides the shared low-level types, config, and error
// vocabulary used by every frontend package: blob identifiers, replica
// error codes, router/pipeline error kinds, and the atomic config holder.
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "fmt"

// Assert panics if cond is false. Used only to guard invariants that a
// broken collaborator could violate (single-completion, registry
// bookkeeping) -- never for validating untrusted request input.
func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

// AssertMsg is Assert with a formatted panic message.
func AssertMsg(cond bool, msg string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(msg, args...))
	}
}

// AssertNoErr panics on a non-nil error coming from code that, per the
// component's own contract, cannot fail at this point.
func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}
