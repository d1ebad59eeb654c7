package core

// Code is a short, stable error identifier. It is comparable, allocation-free
// and implements error, so it can be returned directly or wrapped in *Error.
type Code string

func (c Code) Error() string { return string(c) }

const (
	ErrConfigFatal       Code = "config_fatal"
	ErrContractViolation Code = "contract_violation"
	ErrReentrant         Code = "reentrant"
	ErrSlotEmpty         Code = "slot_empty"
	ErrSlotFilled        Code = "slot_filled"
	ErrPinInUse          Code = "pin_in_use"
	ErrUnknownOID        Code = "unknown_oid"
	ErrOIDInUse          Code = "oid_in_use"
	ErrShutdown          Code = "shutdown"
	ErrUnknownCommand    Code = "unknown_command"

	codeOK      Code = "ok"
	codeGeneric Code = "error"
)

// Error carries a Code plus the operation that failed and an optional cause.
type Error struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *Error) Error() string {
	s := e.Op + ": " + string(e.C)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrContractViolation) match a wrapped *Error.
func (e *Error) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

func newError(c Code, op, msg string, cause error) *Error {
	return &Error{C: c, Op: op, Msg: msg, Err: cause}
}

// CodeOf extracts the Code from err. Nil maps to "ok", anything unknown to
// "error".
func CodeOf(err error) Code {
	if err == nil {
		return codeOK
	}
	switch e := err.(type) {
	case Code:
		return e
	case *Error:
		return e.C
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return CodeOf(u.Unwrap())
	}
	return codeGeneric
}
