package exception

import "errors"

var (
	ErrOrderSlotBusy          = errors.New("order: slot already working")
	ErrOrderUnknown           = errors.New("order: not found")
	ErrOrderInvalidTransition = errors.New("order: invalid state transition")
	ErrOrderInvalidRequest    = errors.New("order: invalid request")
	ErrOrderDuplicateID       = errors.New("order: duplicate client order id")
	ErrOrderGatewayClosed     = errors.New("order: gateway closed")
)
