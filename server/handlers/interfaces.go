// Package handlers provides HTTP handlers for the countbridge server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"github.com/nomis52/countbridge/bridge"
	"github.com/nomis52/countbridge/config"
	"github.com/nomis52/countbridge/counters"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// SnapshotSource provides counter snapshots for the pull endpoints.
type SnapshotSource interface {
	ReadAll() counters.Snapshot
	ReadAndReset() counters.Snapshot
}

// StatusProvider provides access to the bridge status.
type StatusProvider interface {
	Status() bridge.Status
}
