package core

import (
	"errors"

	"gwi.com/campus-knowledge/internal/store"
)

var (
	ErrNotFound        = store.ErrNotFound
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrEmptyContent    = errors.New("no content could be extracted")
	ErrAlreadyAnswered = errors.New("message already answered")
	ErrForbidden       = errors.New("forbidden")
)
