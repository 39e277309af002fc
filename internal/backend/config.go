package backend

import (
	"errors"
	"fmt"

	"spendcast/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	cfg := Config{
		Store:    StoreType(appConfig.DataBackend),
		Upstream: UpstreamType(appConfig.Upstream),

		SQLiteDBPath:       appConfig.SQLiteDBPath,
		FirestoreProjectID: appConfig.FirestoreProjectID,

		InvestecBaseURL:      appConfig.InvestecBaseURL,
		InvestecClientID:     appConfig.InvestecClientID,
		InvestecClientSecret: appConfig.InvestecClientSecret,
		InvestecAPIKey:       appConfig.InvestecAPIKey,

		GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
		GoogleSheetName:       appConfig.GoogleSheetName,
		GoogleCredentialsFile: appConfig.GoogleCredentialsFile,
		GoogleOAuthClientFile: appConfig.GoogleOAuthClientFile,
		GoogleOAuthTokenFile:  appConfig.GoogleOAuthTokenFile,
		SheetsPageSize:        appConfig.SheetsPageSize,

		MemorySeedFile: appConfig.MemorySeedFile,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Store.IsValid() {
		return fmt.Errorf("invalid store backend: %s", c.Store)
	}
	if !c.Upstream.IsValid() {
		return fmt.Errorf("invalid upstream: %s", c.Upstream)
	}

	switch c.Store {
	case SQLiteStore:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
	case FirestoreStore:
		if c.FirestoreProjectID == "" {
			return errors.New("Firestore project id is required for firestore backend")
		}
	case MemoryStore:
		// Nothing to configure
	}

	switch c.Upstream {
	case InvestecUpstream:
		if c.InvestecClientID == "" || c.InvestecClientSecret == "" || c.InvestecAPIKey == "" {
			return errors.New("Investec client id, secret and API key are required for investec upstream")
		}
	case SheetsUpstream:
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets upstream")
		}
	case MemoryUpstream:
		// Seed file is optional
	}

	return nil
}
