package core

import (
	"errors"
	"fmt"

	"github.com/searchktools/canteen/core/poller"
)

var (
	// ErrRegistryFull is returned by Registry.Insert at capacity.
	ErrRegistryFull = errors.New("registry full")
	// ErrUnknownToken is returned for a token that is not live. In correct
	// operation the engine never looks one up.
	ErrUnknownToken = errors.New("unknown connection token")
	// ErrNotListening is returned by Run before Listen.
	ErrNotListening = errors.New("engine is not listening")
	// ErrRunning is returned when configuring an engine that already runs.
	ErrRunning = errors.New("engine is running")
)

// ConfigError is a setup-time failure. The engine must not serve traffic
// after one.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("canteen: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ConnectionFault is an I/O failure confined to one connection. The engine
// removes that connection and keeps serving the others.
type ConnectionFault struct {
	Token poller.Token
	Op    string
	Err   error
}

func (e *ConnectionFault) Error() string {
	return fmt.Sprintf("connection %d: %s: %v", e.Token, e.Op, e.Err)
}

func (e *ConnectionFault) Unwrap() error { return e.Err }
