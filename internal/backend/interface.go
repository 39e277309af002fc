package backend

import (
	"context"

	"spendcast/internal/amqp"
	"spendcast/internal/store"
	"spendcast/internal/upstream"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Backend bundles the persistence, upstream and queue dependencies of the binaries.
type Backend struct {
	Store  store.Store
	Source upstream.Source
	// Queue is nil when AMQP is not configured or unreachable.
	Queue   *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Backend, error)
}

// Config holds configuration for backend creation
type Config struct {
	Store    StoreType
	Upstream UpstreamType

	// SQLite specific
	SQLiteDBPath string

	// Firestore specific
	FirestoreProjectID string

	// Investec specific
	InvestecBaseURL      string
	InvestecClientID     string
	InvestecClientSecret string
	InvestecAPIKey       string

	// Google Sheets specific
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleOAuthClientFile string
	GoogleOAuthTokenFile  string
	SheetsPageSize        int

	// Memory upstream specific
	MemorySeedFile string

	// Optional refresh queue
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// StoreType selects where users and transactions are persisted
type StoreType string

const (
	MemoryStore    StoreType = "memory"
	SQLiteStore    StoreType = "sqlite"
	FirestoreStore StoreType = "firestore"
)

// String implements fmt.Stringer
func (t StoreType) String() string {
	return string(t)
}

// IsValid returns true if the store type is valid
func (t StoreType) IsValid() bool {
	switch t {
	case MemoryStore, SQLiteStore, FirestoreStore:
		return true
	default:
		return false
	}
}

// UpstreamType selects the transaction source
type UpstreamType string

const (
	MemoryUpstream   UpstreamType = "memory"
	InvestecUpstream UpstreamType = "investec"
	SheetsUpstream   UpstreamType = "sheets"
)

func (t UpstreamType) String() string {
	return string(t)
}

func (t UpstreamType) IsValid() bool {
	switch t {
	case MemoryUpstream, InvestecUpstream, SheetsUpstream:
		return true
	default:
		return false
	}
}
