// Package blob selects the document store holding unification rules and
// decision exports.
package blob

import "interactiondb/internal/blob/core"

type (
	// Store aliases core.Store.
	Store = core.Store
	// Info aliases core.Info.
	Info = core.Info
	// PutOptions aliases core.PutOptions.
	PutOptions = core.PutOptions
	// Driver aliases core.Driver.
	Driver = core.Driver
)

// Supported drivers.
const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// Sentinel errors.
var (
	ErrNotFound = core.ErrNotFound
	ErrExists   = core.ErrExists
)
