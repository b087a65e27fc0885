package catalog

import "errors"

var (
	ErrEditionNotFound = errors.New("edition not found")
	ErrEventNotFound   = errors.New("event not found")
	ErrEventPast       = errors.New("event has already taken place")
)
