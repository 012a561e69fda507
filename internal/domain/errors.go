package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyClosed      = errors.New("position already closed")
	ErrLockHeld           = errors.New("lock already held")
	ErrInvalidOrder       = errors.New("invalid order parameters")
	ErrLeverageOutOfRange = errors.New("leverage out of range")
	ErrPriceUnavailable   = errors.New("price unavailable")
	ErrPriceStale         = errors.New("price stale")
	ErrSlippageExceeded   = errors.New("slippage tolerance exceeded")
	ErrInsufficientMargin = errors.New("insufficient free margin")
	ErrRateLimited        = errors.New("rate limited")
	ErrWSDisconnect       = errors.New("websocket disconnected")
)
