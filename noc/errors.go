package noc

import "errors"

// Errors reported by the fabric.
var (
	ErrNoSuchCluster   = errors.New("noc: no such cluster")
	ErrNoSuchInterface = errors.New("noc: no such DMA interface")
	ErrNoSuchTag       = errors.New("noc: no such receive tag")
	ErrNoSuchLine      = errors.New("noc: no such interrupt line")
	ErrRxNotConfigured = errors.New("noc: receive resource not configured")
	ErrPayloadTooLarge = errors.New("noc: message larger than receive buffer")
	ErrInjectedFault   = errors.New("noc: injected fault")
)
