package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sony/gobreaker"

	"github.com/arc-sentinel/sentinel-core/internal/config"
	"github.com/arc-sentinel/sentinel-core/internal/monitoring"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Gateway is the single persistence seam for the whole pipeline. All
// queries route through a circuit breaker so a dead database degrades to
// fast failures instead of piling up blocked handlers.
type Gateway struct {
	db      *sqlx.DB
	breaker *gobreaker.CircuitBreaker
	logger  logger.Logger
}

// New opens the Postgres pool and verifies connectivity.
func New(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*Gateway, error) {
	db, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	g := newWithDB(db, log)
	log.Info("connected to postgres", "max_open_conns", cfg.MaxOpenConns)
	return g, nil
}

// newWithDB wires a gateway around an existing pool. Tests inject sqlmock
// through this path.
func newWithDB(db *sqlx.DB, log logger.Logger) *Gateway {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "postgres",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("database circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Gateway{db: db, breaker: breaker, logger: log}
}

// execute runs op through the breaker and records the outcome metric.
func (g *Gateway) execute(operation, table string, op func() (interface{}, error)) (interface{}, error) {
	result, err := g.breaker.Execute(op)
	monitoring.RecordDBOperation(operation, table, err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows))
	return result, err
}

// HealthCheck pings the database inside the breaker so an open circuit
// surfaces as unhealthy.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.db.PingContext(ctx)
	})
	return err
}

// EnsureSchema applies the idempotent DDL for all tables.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (g *Gateway) Close() error {
	return g.db.Close()
}
