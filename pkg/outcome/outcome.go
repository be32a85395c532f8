// Package outcome models business results as tagged statuses instead of
// thrown faults. Services return a Result for every expected path — success,
// policy rejection, missing resource — and reserve plain errors for
// infrastructure failures that must abort the enclosing transaction.
package outcome

// Status is the enumerated outcome set shared by every service operation.
type Status string

const (
	Available              Status = "available"
	PendingApproval        Status = "pending_approval"
	RequiresParentApproval Status = "requires_parent_approval"
	Completed              Status = "completed"
	Approved               Status = "approved"
	Declined               Status = "declined"
	Unauthorized           Status = "unauthorized"
	NotAuthorized          Status = "not_authorized"
	NotFound               Status = "not_found"
	NotAvailable           Status = "not_available"
	NotAcceptable          Status = "not_acceptable"
)

// OK reports whether the status belongs to the success family — the ones a
// transport layer renders with a 2xx code.
func (s Status) OK() bool {
	switch s {
	case Available, PendingApproval, Completed, Approved, Declined:
		return true
	}
	return false
}

// Result carries a status, an optional payload and an optional human-readable
// message back to the transport layer.
type Result[T any] struct {
	Status  Status `json:"status"`
	Data    T      `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Of builds a Result with a payload.
func Of[T any](status Status, data T) Result[T] {
	return Result[T]{Status: status, Data: data}
}

// OfMsg builds a Result with a payload and a message.
func OfMsg[T any](status Status, data T, message string) Result[T] {
	return Result[T]{Status: status, Data: data, Message: message}
}

// Fail builds a Result without a payload. The data field stays at the zero
// value of T.
func Fail[T any](status Status, message string) Result[T] {
	return Result[T]{Status: status, Message: message}
}
