package cdp

import "errors"

var (
	// Usage errors.
	ErrEventNotCallable = errors.New("cdp: events cannot be invoked")
	ErrUnknownMethod    = errors.New("cdp: unknown method")
	ErrUnknownEvent     = errors.New("cdp: unknown event")
	ErrUnknownDomain    = errors.New("cdp: unknown domain")
	ErrTooManyArgs      = errors.New("cdp: too many arguments")
	ErrDuplicateDomain  = errors.New("cdp: domain registered twice")

	// Call failures.
	ErrNotConnected       = errors.New("cdp: not connected")
	ErrCallTimeout        = errors.New("cdp: call timed out")
	ErrClientClosed       = errors.New("cdp: client closed")
	ErrUnsupportedVersion = errors.New("cdp: unsupported browser version")
)
