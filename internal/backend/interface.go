// Package backend builds the remote persistence client selected by
// configuration and resolves the local fallback collection used when the
// remote cannot be loaded.
package backend

import (
	"context"
	"time"

	"goalplanner/internal/remote"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the remote client and optional cleanup function
type Result struct {
	Client  remote.Client
	Cleanup CleanupFunc
}

// Factory creates remote clients based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// REST
	GoalsAPIURL string
	Timeout     time.Duration

	// Memory backend seed, also the last-resort load fallback
	SeedFile string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	RESTBackend   BackendType = "rest"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case RESTBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
