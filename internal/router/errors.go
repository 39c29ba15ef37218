package router

import "fmt"

// TransientError is returned by a Sink when the send failed but a
// retry of a later packet might succeed (e.g. a momentarily full
// socket buffer). The router counts it as a dropped packet for that
// destination and continues with the next packet (spec.md §7).
type TransientError struct {
	Destination TransportID
	Cause       error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("router: transient send failure to %s: %v", e.Destination, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// FatalError is returned by a Sink when the transport itself is gone
// (e.g. the socket was closed). The router still does not treat this
// as fatal to itself — it is counted the same as a transient failure —
// but transports may use the distinction to decide whether to
// re-register.
type FatalError struct {
	Destination TransportID
	Cause       error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("router: fatal send failure to %s: %v", e.Destination, e.Cause)
}

func (e *FatalError) Unwrap() error { return e.Cause }
