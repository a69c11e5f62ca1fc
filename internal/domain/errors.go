package domain

import "errors"

var (
	ErrHolderNotFound  = errors.New("holder not found")
	ErrModelNotFound   = errors.New("model not found")
	ErrOverlayNotFound = errors.New("overlay not found")
	ErrInvalidProfile  = errors.New("invalid discord profile")
)
