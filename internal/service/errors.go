package service

import "errors"

// Room lifecycle errors
var (
	ErrAlreadyInRoom = errors.New("user already in an active room")
	ErrNotInRoom     = errors.New("user has no active room")
)
