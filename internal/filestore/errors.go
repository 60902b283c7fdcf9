package filestore

import "errors"

var (
	ErrTooLarge = errors.New("file exceeds upload limit")
	ErrEmpty    = errors.New("file is empty")
)
