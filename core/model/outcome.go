package model

// OutcomeKind classifies the result of a single dispatch attempt.
type OutcomeKind int

const (
	// OutcomeSuccess means the endpoint accepted the task, either through
	// the HTTP-level success flag or the business success code.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeBusinessFailure means the endpoint was reachable but rejected
	// the task.
	OutcomeBusinessFailure
	// OutcomeTransportFailure covers non-2xx statuses, timeouts and
	// connection errors.
	OutcomeTransportFailure
)

// String returns the wire name of the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeBusinessFailure:
		return "business_failure"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// DispatchOutcome is the immutable result of one dispatch attempt.
// Code and Message carry whatever could be extracted from the payload.
type DispatchOutcome struct {
	Kind    OutcomeKind `json:"kind"`
	Code    int         `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// IsSuccess reports whether the outcome counts as an accepted dispatch.
func (o DispatchOutcome) IsSuccess() bool { return o.Kind == OutcomeSuccess }
