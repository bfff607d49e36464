package coordinator

import "errors"

// Sentinel errors for coordinator construction.
var (
	// ErrNilRegistrar indicates the coordinator was built without a registrar.
	ErrNilRegistrar = errors.New("coordinator: registrar is nil")

	// ErrNilReloader indicates the coordinator was built without a reloader.
	ErrNilReloader = errors.New("coordinator: reloader is nil")
)
