package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS kronos_schedules (
	name       TEXT PRIMARY KEY,
	job_group  TEXT NOT NULL,
	cron       TEXT NOT NULL,
	misfire    TEXT NOT NULL,
	paused     BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL
)`
	upsertSQL = `INSERT INTO kronos_schedules (name, job_group, cron, misfire, paused, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (name) DO UPDATE SET
	job_group = EXCLUDED.job_group,
	cron = EXCLUDED.cron,
	misfire = EXCLUDED.misfire,
	paused = EXCLUDED.paused,
	updated_at = EXCLUDED.updated_at`
	deleteSQL = `DELETE FROM kronos_schedules WHERE name = $1`
	selectSQL = `SELECT name, job_group, cron, misfire, paused, updated_at FROM kronos_schedules ORDER BY name`
)

// Postgres keeps records in the kronos_schedules table, created on first use.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ core.ScheduleStore = (*Postgres)(nil)

func NewPostgres(ctx context.Context, cfg *PostgresConfig) (*Postgres, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.InfraError(fmt.Errorf("failed to create database pool: %w", err)).WithCode("STORE_UNAVAILABLE")
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.InfraError(fmt.Errorf("failed to ping database: %w", err)).WithCode("STORE_UNAVAILABLE")
	}
	return NewPostgresWithPool(ctx, pool)
}

// NewPostgresWithPool uses an existing pool and makes sure the table exists.
func NewPostgresWithPool(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return nil, errors.InfraError(fmt.Errorf("create kronos_schedules: %w", err))
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Save(ctx context.Context, record core.ScheduleRecord) error {
	_, err := p.pool.Exec(ctx, upsertSQL,
		record.Name, record.Group, record.Cron, string(record.Misfire), record.Paused, record.UpdatedAt)
	if err != nil {
		return errors.InfraError(fmt.Errorf("save schedule %q: %w", record.Name, err))
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, name string) error {
	if _, err := p.pool.Exec(ctx, deleteSQL, name); err != nil {
		return errors.InfraError(fmt.Errorf("delete schedule %q: %w", name, err))
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context) ([]core.ScheduleRecord, error) {
	rows, err := p.pool.Query(ctx, selectSQL)
	if err != nil {
		return nil, errors.InfraError(fmt.Errorf("load schedules: %w", err))
	}
	defer rows.Close()

	var records []core.ScheduleRecord
	for rows.Next() {
		var (
			record  core.ScheduleRecord
			misfire string
		)
		if err := rows.Scan(&record.Name, &record.Group, &record.Cron, &misfire, &record.Paused, &record.UpdatedAt); err != nil {
			return nil, errors.InfraError(fmt.Errorf("scan schedule: %w", err))
		}
		record.Misfire = core.MisfirePolicy(misfire)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InfraError(fmt.Errorf("load schedules: %w", err))
	}
	return records, nil
}

// HealthCheck pings the database with a one second deadline.
func (p *Postgres) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
