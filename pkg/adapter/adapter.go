// Package adapter provides the warehouse adapter contract, a registry of
// adapter factories and a database/sql base that concrete adapters embed.
//
// Concrete adapters live in pkg/adapters/ subdirectories and register
// themselves from init; import them with a blank identifier.
package adapter

import (
	"github.com/leapstack-labs/inspector/pkg/core"
)

type (
	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Adapter is an alias for core.Adapter.
	Adapter = core.Adapter
)
