package handlerruntime

import "errors"

var (
	ErrDisabled    = errors.New("handlerruntime: runtime disabled")
	ErrCircuitOpen = errors.New("handlerruntime: circuit open")
)
