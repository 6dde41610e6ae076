package exception

import "errors"

var (
	ErrBookUninitialized = errors.New("book: not initialized")
	ErrBookStale         = errors.New("book: stale, snapshot required")
	ErrBookSequenceGap   = errors.New("book: sequence gap")
	ErrBookCrossed       = errors.New("book: crossed after batch apply")
	ErrBookUnknownAction = errors.New("book: unknown update action")
	ErrBookUnknownSide   = errors.New("book: unknown side")
)
