package mesh

import (
	"time"
)

// EngineOption is implemented by the network layer and the configurator to
// allow using configuration options.
type EngineOption interface {
	SetTTL(uint8) error
	SetReassemblyTimeout(time.Duration) error
	SetLogger(Logger) error
	SetErrorHandler(handler func(error)) error
	SetWriteWithResponse(bool) error
}

// An Option is a configuration function, which configures the engine.
type Option func(EngineOption) error

// DefaultTTL is used for outbound network PDUs unless OptTTL overrides it.
const DefaultTTL = 5

// DefaultReassemblyTimeout bounds how long an incomplete inbound segmented
// message is kept (lower transport incomplete timer).
const DefaultReassemblyTimeout = 10 * time.Second

// OptTTL sets the TTL of outbound network PDUs.
func OptTTL(ttl uint8) Option {
	return func(opt EngineOption) error {
		return opt.SetTTL(ttl)
	}
}

// OptReassemblyTimeout sets the incomplete timer for inbound segmented messages.
func OptReassemblyTimeout(d time.Duration) Option {
	return func(opt EngineOption) error {
		return opt.SetReassemblyTimeout(d)
	}
}

// OptLogger overrides the package logger.
func OptLogger(l Logger) Option {
	return func(opt EngineOption) error {
		return opt.SetLogger(l)
	}
}

// OptErrorHandler sets error handler for errors that happen outside a call,
// e.g. a delayed acknowledgment write.
func OptErrorHandler(handler func(error)) Option {
	return func(opt EngineOption) error {
		return opt.SetErrorHandler(handler)
	}
}

// OptWriteWithResponse selects write-with-response for outbound PDUs.
func OptWriteWithResponse(b bool) Option {
	return func(opt EngineOption) error {
		return opt.SetWriteWithResponse(b)
	}
}
