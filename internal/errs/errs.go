package errs

import "errors"

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrEmailMismatch  = errors.New("email does not match ticket requester")
)
