package session

import (
	"errors"
	"fmt"

	"github.com/iliyamo/storefront/internal/gateway"
)

// ErrNotAuthenticated is returned without contacting the gateway when an
// operation needs an identity and none is present.
var ErrNotAuthenticated = gateway.ErrNotAuthenticated

// ErrNoSession is returned by SignUp when the gateway created a credential
// but did not hand back a session for it.
var ErrNoSession = errors.New("credential created without a session")

// Operations that write twice.
const (
	OpSignUp        = "sign_up"
	OpUpdateProfile = "update_profile"
)

// StepProfile is the second write of both two-step operations.
const StepProfile = "profile"

// PartialWriteError reports that the first write of a two-step operation
// succeeded and the second failed.  Compensated tells whether the first
// write was undone afterwards.
type PartialWriteError struct {
	Op              string
	Step            string
	Err             error
	Compensated     bool
	CompensationErr error
}

func (e *PartialWriteError) Error() string {
	msg := fmt.Sprintf("%s: %s write failed: %v", e.Op, e.Step, e.Err)
	switch {
	case e.Compensated:
		msg += " (rolled back)"
	case e.CompensationErr != nil:
		msg += fmt.Sprintf(" (rollback failed: %v)", e.CompensationErr)
	}
	return msg
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
