package settings

import "errors"

// Sentinel errors. Use errors.Is to match.
var (
	// ErrNotFound indicates the settings file does not exist.
	ErrNotFound = errors.New("settings: file not found")

	// ErrNotRegistered indicates an operation referenced an unknown property.
	ErrNotRegistered = errors.New("settings: property not registered")

	// ErrUnknownFormat indicates the file format could not be determined.
	ErrUnknownFormat = errors.New("settings: unable to determine file format")
)
