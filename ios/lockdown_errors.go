package ios

import (
	"errors"
	"fmt"
)

// Lockdown error classes. Device error strings not listed in lockdownErrorCodes map to ErrUnknown.
var (
	ErrUnknown                      = errors.New("lockdown: unknown error")
	ErrPasswordProtected            = errors.New("lockdown: password protected")
	ErrUserDeniedPairing            = errors.New("lockdown: user denied pairing")
	ErrPairingDialogResponsePending = errors.New("lockdown: pairing dialog response pending")
	ErrInvalidHostID                = errors.New("lockdown: invalid host id")
	ErrInvalidPairRecord            = errors.New("lockdown: invalid pair record")
	ErrSetProhibited                = errors.New("lockdown: set prohibited")
	ErrGetProhibited                = errors.New("lockdown: get prohibited")
	ErrMissingValue                 = errors.New("lockdown: missing value")
	ErrSessionInactive              = errors.New("lockdown: session inactive")
	ErrInvalidService               = errors.New("lockdown: invalid service")
	ErrPairingProhibited            = errors.New("lockdown: pairing prohibited over this connection")
	ErrOther                        = errors.New("lockdown: request failed")
)

var lockdownErrorCodes = map[string]error{
	"PasswordProtected":                   ErrPasswordProtected,
	"UserDeniedPairing":                   ErrUserDeniedPairing,
	"PairingDialogResponsePending":        ErrPairingDialogResponsePending,
	"InvalidHostID":                       ErrInvalidHostID,
	"InvalidPairRecord":                   ErrInvalidPairRecord,
	"SetProhibited":                       ErrSetProhibited,
	"GetProhibited":                       ErrGetProhibited,
	"MissingValue":                        ErrMissingValue,
	"SessionInactive":                     ErrSessionInactive,
	"InvalidService":                      ErrInvalidService,
	"PairingProhibitedOverThisConnection": ErrPairingProhibited,
	"InvalidResponse":                     ErrOther,
	"MissingKey":                          ErrOther,
	"RemoveProhibited":                    ErrOther,
	"ImmutableValue":                      ErrOther,
	"MissingHostID":                       ErrOther,
	"SessionActive":                       ErrOther,
	"MissingSessionID":                    ErrOther,
	"InvalidSessionID":                    ErrOther,
	"MissingService":                      ErrOther,
	"ServiceLimit":                        ErrOther,
	"MissingPairRecord":                   ErrOther,
	"SavePairRecordFailed":                ErrOther,
	"InvalidActivationRecord":             ErrOther,
	"MissingActivationRecord":             ErrOther,
	"ServiceProhibited":                   ErrOther,
	"EscrowLocked":                        ErrOther,
	"FMiPProtected":                       ErrOther,
	"MCProtected":                         ErrOther,
	"MCChallengeRequired":                 ErrOther,
	"WrongDirection":                      ErrOther,
}

// LockdownError is an error string lockdownd sent back for a request.
type LockdownError struct {
	Request string
	Code    string
	class   error
}

func newLockdownError(request string, code string) *LockdownError {
	class, ok := lockdownErrorCodes[code]
	if !ok {
		class = ErrUnknown
	}
	return &LockdownError{Request: request, Code: code, class: class}
}

func (e *LockdownError) Error() string {
	return fmt.Sprintf("lockdown %s failed: %s", e.Request, e.Code)
}

// Unwrap makes errors.Is match the error class, f.ex. ErrUnknown.
func (e *LockdownError) Unwrap() error {
	return e.class
}
