package evidence

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/sanchita-suni/Calyx/pkg/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres archives reports in the evidence_reports table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool to dsn.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, core.EvidenceError("open", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, core.EvidenceError("ping", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate applies the embedded schema migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return core.EvidenceError("migrate", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return core.EvidenceError("migrate", fmt.Errorf("goose up: %w", err))
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, r Report) error {
	if r.File == "" {
		return core.EvidenceError("save", errors.New("report has no file name"))
	}
	body, err := json.Marshal(r)
	if err != nil {
		return core.EvidenceError("save", err)
	}
	var lat, lng *float64
	if r.Location != nil {
		lat, lng = &r.Location.Lat, &r.Location.Lng
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO evidence_reports (file, id, session_id, user_name, lat, lng, scenario, threat, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (file) DO UPDATE SET report = EXCLUDED.report`,
		r.File, r.ID, r.SessionID, r.User, lat, lng, r.Scenario, r.Threat, body, r.CreatedAt,
	)
	if err != nil {
		return core.EvidenceError("save", err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, file string) (Report, error) {
	var body []byte
	err := p.pool.QueryRow(ctx, `SELECT report FROM evidence_reports WHERE file = $1`, file).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, core.EvidenceError("load", err)
	}
	var r Report
	if err := json.Unmarshal(body, &r); err != nil {
		return Report{}, core.EvidenceError("load", err)
	}
	return r, nil
}

// Ping checks the pool.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
