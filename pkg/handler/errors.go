package handler

import "errors"

var (
	// ErrHandlerNotFound is returned when no active handler has the reference
	ErrHandlerNotFound = errors.New("handler not found")

	// ErrInvalidFactory is returned when a factory registration is unusable
	ErrInvalidFactory = errors.New("invalid factory")

	// ErrDuplicateFactory is returned when a reference is registered twice
	ErrDuplicateFactory = errors.New("factory already registered")

	// ErrFactoryNotRegistered is returned when an in-process handler has no factory
	ErrFactoryNotRegistered = errors.New("no factory registered for handler")

	// ErrContractNotSatisfied is returned when a factory yields no executor
	ErrContractNotSatisfied = errors.New("handler does not implement the executor contract")

	// ErrEmptyScript is returned when a script handler has no body
	ErrEmptyScript = errors.New("script handler has no script")

	// ErrTimeoutOutOfRange is returned for a script timeout outside the
	// accepted range
	ErrTimeoutOutOfRange = errors.New("script timeout out of range")

	// ErrUnknownKind is returned for handler kinds this build cannot run
	ErrUnknownKind = errors.New("unknown handler kind")
)
