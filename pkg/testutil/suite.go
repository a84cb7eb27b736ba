// Package testutil provides testing utilities for the CV bank services:
// a shared PostgreSQL test container, sqlmock helpers, HTTP helpers and
// document fixtures.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cvbank/cvbank-backend/pkg/database"
	"github.com/cvbank/cvbank-backend/pkg/logger"
)

const postgresImage = "postgres:16-alpine"

var (
	// one container per test binary, migrated once
	shared     *postgres.PostgresContainer
	sharedDB   *sqlx.DB
	sharedOnce sync.Once
	sharedErr  error
)

// IntegrationSuite gives a test a migrated PostgreSQL database. Tables are
// truncated when the test finishes.
type IntegrationSuite struct {
	RawDB  *sqlx.DB
	DB     *database.DB
	Logger *logger.Logger
}

// NewIntegrationSuite starts (or reuses) the test container.
//
// Usage:
//
//	func TestPostgresCVRepository_Integration(t *testing.T) {
//	    testutil.SkipIfShort(t)
//	    suite := testutil.NewIntegrationSuite(t)
//	    repo := repository.NewPostgresCVRepository(suite.DB)
//	    ...
//	}
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	t.Helper()
	ctx := context.Background()

	db, err := sharedDatabase(ctx)
	if err != nil {
		t.Fatalf("failed to start test database: %v", err)
	}

	log := logger.Nop()
	s := &IntegrationSuite{
		RawDB:  db,
		DB:     database.Wrap(db, log),
		Logger: log,
	}

	t.Cleanup(func() {
		if err := s.Truncate(ctx); err != nil {
			t.Logf("warning: failed to truncate tables: %v", err)
		}
	})

	return s
}

func sharedDatabase(ctx context.Context) (*sqlx.DB, error) {
	sharedOnce.Do(func() {
		shared, sharedErr = postgres.RunContainer(ctx,
			testcontainers.WithImage(postgresImage),
			postgres.WithDatabase("cvbank_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if sharedErr != nil {
			sharedErr = fmt.Errorf("start postgres container: %w", sharedErr)
			return
		}

		var dsn string
		dsn, sharedErr = shared.ConnectionString(ctx, "sslmode=disable")
		if sharedErr != nil {
			return
		}
		if sharedErr = database.Migrate(dsn, logger.Nop()); sharedErr != nil {
			return
		}
		sharedDB, sharedErr = sqlx.ConnectContext(ctx, "postgres", dsn)
	})

	return sharedDB, sharedErr
}

// Truncate empties every application table
func (s *IntegrationSuite) Truncate(ctx context.Context) error {
	_, err := s.RawDB.ExecContext(ctx, `TRUNCATE cv_records, users`)
	return err
}

// TerminateContainer stops the shared container. Call it from TestMain after m.Run.
func TerminateContainer(ctx context.Context) {
	if sharedDB != nil {
		sharedDB.Close()
	}
	if shared != nil {
		shared.Terminate(ctx)
	}
}
