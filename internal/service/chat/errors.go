package chat

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrServerMisconfigured = errors.New("server misconfigured")
	ErrUpstreamLookup      = errors.New("upstream lookup failed")
)

// Messages returned to callers verbatim.
const (
	MsgInvalidText   = "Invalid 'text'"
	MsgMisconfigured = "Server not configured: SUPABASE_SERVICE_ROLE_KEY missing"
)

// RelayError is a caller-facing failure: Kind is one of the sentinels above and
// Message is the text placed in the response body.
type RelayError struct {
	Kind    error
	Message string
}

func (e *RelayError) Error() string {
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Kind
}

func relayError(kind error, msg string) error {
	return &RelayError{Kind: kind, Message: msg}
}
