// Copyright 2021 The jackal Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlrepository implements a PostgreSQL or MySQL backed repository.
package sqlrepository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/jackal-xmpp/cmux/storage/repository"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sony/gobreaker"
)

// Dialect selects the SQL flavour in use.
type Dialect string

const (
	// PgSQL dialect uses PostgreSQL driver and '$n' placeholders.
	PgSQL Dialect = "pgsql"

	// MySQL dialect uses MySQL driver and '?' placeholders.
	MySQL Dialect = "mysql"
)

const pingInterval = time.Second * 15

type conn interface {
	sq.StdSqlCtx
}

// BreakerConfig contains circuit breaker configuration.
type BreakerConfig struct {
	MaxRequests uint32        `yaml:"max_requests"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Config contains SQL configuration value.
type Config struct {
	Host            string        `yaml:"host"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Breaker         BreakerConfig `yaml:"breaker"`
}

// Repository represents a SQL repository implementation.
type Repository struct {
	repository.Offline

	dialect Dialect
	cfg     Config
	logger  kitlog.Logger

	db     *sql.DB
	doneCh chan chan struct{}
}

// New creates and returns an initialized SQL Repository instance.
func New(dialect Dialect, cfg Config, logger kitlog.Logger) *Repository {
	return &Repository{
		dialect: dialect,
		cfg:     cfg,
		logger:  kitlog.With(logger, "repository", string(dialect)),
	}
}

// Start implements Start interface method.
func (r *Repository) Start(ctx context.Context) error {
	driver, dsn := r.driverAndDSN()
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("sqlrepository: failed to open %s connection: %v", r.dialect, err)
	}
	db.SetMaxOpenConns(r.cfg.MaxOpenConns)
	db.SetMaxIdleConns(r.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(r.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("sqlrepository: unable to verify %s connection: %v", r.dialect, err)
	}
	r.attach(db)

	r.doneCh = make(chan chan struct{})
	go r.loop()

	level.Info(r.logger).Log("msg", "dialed SQL connection", "host", r.cfg.Host)
	return nil
}

// Stop closes SQL database and prevents new queries from starting.
func (r *Repository) Stop(_ context.Context) error {
	if r.doneCh != nil {
		ch := make(chan struct{})
		r.doneCh <- ch
		<-ch
	}
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("sqlrepository: failed to close %s connection: %v", r.dialect, err)
	}
	level.Info(r.logger).Log("msg", "closed SQL connection", "host", r.cfg.Host)
	return nil
}

func (r *Repository) attach(db *sql.DB) {
	r.db = db
	r.Offline = newBreakerOffline(&sqlOfflineRep{
		conn:   db,
		stmt:   statementBuilder(r.dialect),
		logger: r.logger,
	}, string(r.dialect), r.cfg.Breaker)
}

func (r *Repository) loop() {
	tc := time.NewTicker(pingInterval)
	defer tc.Stop()
	for {
		select {
		case <-tc.C:
			if err := r.db.Ping(); err != nil {
				level.Warn(r.logger).Log("msg", "SQL ping failed", "err", err)
			}
		case ch := <-r.doneCh:
			close(ch)
			return
		}
	}
}

func (r *Repository) driverAndDSN() (driver, dsn string) {
	switch r.dialect {
	case MySQL:
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", r.cfg.User, r.cfg.Password, r.cfg.Host, r.cfg.Database)
	default:
		sslMode := r.cfg.SSLMode
		if len(sslMode) == 0 {
			sslMode = "disable"
		}
		return "postgres", fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s", r.cfg.User, r.cfg.Password, r.cfg.Host, r.cfg.Database, sslMode)
	}
}

func statementBuilder(dialect Dialect) sq.StatementBuilderType {
	if dialect == MySQL {
		return sq.StatementBuilder.PlaceholderFormat(sq.Question)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func breakerSettings(name string, cfg BreakerConfig) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
	}
}

func closeRows(rows *sql.Rows, logger kitlog.Logger) {
	if err := rows.Close(); err != nil {
		level.Warn(logger).Log("msg", "failed to close SQL rows", "err", err)
	}
}
