package exception

import "errors"

var (
	ErrFeedInvalidPayload  = errors.New("feed: invalid payload")
	ErrFeedUnknownSymbol   = errors.New("feed: unknown symbol")
	ErrFeedUnknownChannel  = errors.New("feed: unknown channel")
	ErrFeedQueueFull       = errors.New("feed: event queue full")
	ErrFeedQueueClosed     = errors.New("feed: event queue closed")
	ErrFeedResyncRequested = errors.New("feed: resync requested")
)
