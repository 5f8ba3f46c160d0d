package core

import (
	"time"

	"github.com/searchktools/canteen/core/poller"
)

// Defaults
const (
	DefaultCapacity       = 2048
	DefaultReadBufferSize = 2048
	DefaultMaxEvents      = 128
	DefaultPollInterval   = 100 * time.Millisecond
)

// Tokens 0 and 1 are reserved; clients are numbered from FirstClientToken.
const (
	ListenerToken    poller.Token = 1
	FirstClientToken poller.Token = 2
)
