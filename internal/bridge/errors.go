package bridge

import "errors"

// Error kinds the bridge client distinguishes, per the taxonomy the worker
// and operator surfaces rely on: connection errors are retriable, session
// errors are not.
var (
	ErrConnection = errors.New("bridge connection error")
	ErrSession    = errors.New("bridge session error")
	ErrBridge     = errors.New("whatsapp bridge error")
)
