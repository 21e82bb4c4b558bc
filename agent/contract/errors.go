package contract

import "errors"

var (
	ErrValidation  = errors.New("validation failed")
	ErrDecode      = errors.New("message body decode failed")
	ErrUnknownBody = errors.New("unknown message body kind")
)
