package registry

import "fmt"

// WriteErrorKind classifies a failed registry write.
type WriteErrorKind string

const (
	WriteInsufficientBalance WriteErrorKind = "insufficient_balance"
	WriteRPCFailure          WriteErrorKind = "rpc_failure"
)

// WriteError is terminal for the specific write attempt. Callers must not
// retry automatically: a retried registration spends the fee again.
type WriteError struct {
	Kind WriteErrorKind
	Err  error
}

func (e *WriteError) Error() string {
	if e.Kind == WriteInsufficientBalance {
		return "registry write: insufficient balance for registration fee"
	}
	return fmt.Sprintf("registry write: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
