package wallet

import "errors"

var (
	// ErrNotFound indicates the referenced video or account does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidOperation indicates a request that makes no sense for the target, such as gifting yourself.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrConflict indicates the buyer already owns the video.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientFunds indicates the payer's balance is lower than the amount due.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidArgument indicates a malformed request, such as a non-positive gift amount.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInfrastructure indicates a storage failure. The outcome of the transfer is unknown and
	// callers must re-read the balance before retrying.
	ErrInfrastructure = errors.New("transfer outcome unknown")
)

// Error carries a display message alongside one of the sentinel kinds above.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Is reports whether target is the sentinel kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Message returns the user-facing message for err, or fallback when err is not a wallet error.
func Message(err error, fallback string) string {
	var werr *Error
	if errors.As(err, &werr) && werr.Message != "" {
		return werr.Message
	}
	return fallback
}
