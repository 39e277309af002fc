package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spendcast/internal/amqp"
	"spendcast/internal/log"
	"spendcast/internal/storage"
	"spendcast/internal/store"
	"spendcast/internal/store/firestore"
	storemem "spendcast/internal/store/memory"
	"spendcast/internal/upstream"
	"spendcast/internal/upstream/investec"
	upstreammem "spendcast/internal/upstream/memory"
	"spendcast/internal/upstream/sheets"
)

const upstreamTimeout = 30 * time.Second

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	st, err := f.createStore(ctx, config)
	if err != nil {
		return nil, err
	}

	src, err := f.createSource(ctx, config)
	if err != nil {
		st.Close()
		return nil, err
	}

	// AMQP is optional; without it syncs run inline
	var queue *amqp.Client
	if config.AMQPURL != "" {
		queue, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without queue", log.FieldError, err)
			queue = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	f.logger.Info("Initialized backend",
		"store", config.Store,
		"upstream", config.Upstream,
		"amqp_enabled", queue != nil)

	return &Backend{
		Store:  st,
		Source: src,
		Queue:  queue,
		Cleanup: func() error {
			var errs []error
			if queue != nil {
				errs = append(errs, queue.Close())
			}
			errs = append(errs, st.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createStore(ctx context.Context, config Config) (store.Store, error) {
	switch config.Store {
	case SQLiteStore:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return repo, nil
	case FirestoreStore:
		fs, err := firestore.Open(ctx, config.FirestoreProjectID, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firestore store: %w", err)
		}
		f.logger.Info("Initialized Firestore store", "project_id", config.FirestoreProjectID)
		return fs, nil
	case MemoryStore:
		f.logger.Info("Initialized memory store")
		return storemem.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", config.Store)
	}
}

func (f *DefaultFactory) createSource(ctx context.Context, config Config) (upstream.Source, error) {
	switch config.Upstream {
	case InvestecUpstream:
		f.logger.Info("Initialized Investec upstream", "base_url", config.InvestecBaseURL)
		return investec.New(ctx, investec.Config{
			BaseURL:      config.InvestecBaseURL,
			ClientID:     config.InvestecClientID,
			ClientSecret: config.InvestecClientSecret,
			APIKey:       config.InvestecAPIKey,
			Timeout:      upstreamTimeout,
		}), nil
	case SheetsUpstream:
		cli, err := sheets.New(ctx, sheets.Config{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			SheetName:       config.GoogleSheetName,
			CredentialsFile: config.GoogleCredentialsFile,
			OAuthClientFile: config.GoogleOAuthClientFile,
			OAuthTokenFile:  config.GoogleOAuthTokenFile,
			PageSize:        config.SheetsPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets upstream", "sheet", config.GoogleSheetName)
		return cli, nil
	case MemoryUpstream:
		src, err := upstreammem.NewFromFile(config.MemorySeedFile, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize memory upstream: %w", err)
		}
		f.logger.Info("Initialized memory upstream", "seed_file", config.MemorySeedFile)
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported upstream: %s", config.Upstream)
	}
}
