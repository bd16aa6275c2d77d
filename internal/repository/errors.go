package repository

import "errors"

var (
	// ErrDuplicateName is returned when saving a topic whose name is already
	// used by a saved topic.
	ErrDuplicateName = errors.New("topic name already saved")
	ErrEmptyName     = errors.New("topic name is empty")

	ErrIndexOutOfRange = errors.New("topic index out of range")

	// ErrStaleGeneration is returned for community work that finished after
	// the collection was refreshed.
	ErrStaleGeneration = errors.New("community topics were refreshed")

	// ErrNotLoaded is returned when exporting a community topic whose
	// content has not been fetched yet.
	ErrNotLoaded = errors.New("topic content not loaded")

	ErrNoCommunitySource = errors.New("no community source configured")
	ErrUnknownMode       = errors.New("unknown topic mode")
)
