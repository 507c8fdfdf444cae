package incidents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// PostgresArchive stores closed incidents in the resolved_incidents table.
// The full incident is kept as JSONB next to indexed summary columns.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: time.Minute,
	}
}

func NewPostgresArchive(ctx context.Context, connString string, pc PoolConfig) (*PostgresArchive, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if pc.MaxConns > 0 {
		config.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		config.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		config.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresArchive{pool: pool}, nil
}

func (a *PostgresArchive) Store(ctx context.Context, inc models.SecurityIncident) error {
	doc, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("failed to encode incident: %w", err)
	}

	categories := make([]string, len(inc.Categories))
	for i, c := range inc.Categories {
		categories[i] = string(c)
	}
	resolvedAt := inc.UpdatedAt
	if inc.ResolvedAt != nil {
		resolvedAt = *inc.ResolvedAt
	}

	query := `
		INSERT INTO resolved_incidents (
			id, title, level, status, risk_score, confidence, categories,
			affected_actors, affected_addresses, indicator_count,
			notes, created_at, resolved_at, document
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			notes = EXCLUDED.notes,
			resolved_at = EXCLUDED.resolved_at,
			document = EXCLUDED.document
	`
	_, err = a.pool.Exec(ctx, query,
		inc.ID, inc.Title, inc.Level.String(), string(inc.Status), inc.RiskScore, inc.Confidence,
		categories, nonNil(inc.AffectedActors), nonNil(inc.AffectedAddresses), len(inc.Indicators),
		inc.Notes, inc.CreatedAt, resolvedAt, doc,
	)
	if err != nil {
		return fmt.Errorf("failed to archive incident: %w", err)
	}
	return nil
}

func (a *PostgresArchive) Get(ctx context.Context, id string) (models.SecurityIncident, error) {
	var doc []byte
	err := a.pool.QueryRow(ctx, `SELECT document FROM resolved_incidents WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SecurityIncident{}, ErrIncidentNotArchived
		}
		return models.SecurityIncident{}, fmt.Errorf("failed to get archived incident: %w", err)
	}
	return decodeIncident(doc)
}

func (a *PostgresArchive) List(ctx context.Context, limit int) ([]models.SecurityIncident, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.pool.Query(ctx, `
		SELECT document FROM resolved_incidents
		ORDER BY resolved_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived incidents: %w", err)
	}
	defer rows.Close()

	var out []models.SecurityIncident
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan archived incident: %w", err)
		}
		inc, err := decodeIncident(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate archived incidents: %w", err)
	}
	return out, nil
}

func (a *PostgresArchive) Close() error {
	a.pool.Close()
	return nil
}

func decodeIncident(doc []byte) (models.SecurityIncident, error) {
	var inc models.SecurityIncident
	if err := json.Unmarshal(doc, &inc); err != nil {
		return models.SecurityIncident{}, fmt.Errorf("failed to decode archived incident: %w", err)
	}
	return inc, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
