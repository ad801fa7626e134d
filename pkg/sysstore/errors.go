package sysstore

import "errors"

var (
	ErrIdentityMismatch  = errors.New("stored identity differs from the one being saved")
	ErrGroup0IDMismatch  = errors.New("group 0 id already persisted with a different value")
	ErrInvalidPeer       = errors.New("peer address cannot be empty")
	ErrCorruptRecord     = errors.New("corrupt record in system store")
	ErrStoreClosed       = errors.New("system store is closed")
)
