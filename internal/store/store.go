package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/jmoiron/sqlx"
	gosqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/migrations"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// queries holds every statement; it runs against either the pool or a
// transaction, so Store and Tx share one implementation.
type queries struct {
	ext sqlx.ExtContext
}

type Store struct {
	queries
	db     *sqlx.DB
	driver string
	logger *zap.Logger
}

type Tx struct {
	queries
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, driver, dsn string, maxConns int, logger *zap.Logger) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case DriverPostgres:
		db, err = sqlx.Open("pgx", normalizeDSN(dsn))
		if err == nil {
			db.SetMaxOpenConns(maxConns)
			db.SetMaxIdleConns(maxConns)
			db.SetConnMaxIdleTime(5 * time.Minute)
		}
	case DriverSQLite:
		db, err = sqlx.Open("sqlite3", dsn)
		if err == nil {
			// one writer at a time
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		queries: queries{ext: db},
		db:      db,
		driver:  driver,
		logger:  logger.Named("store"),
	}
	if err := s.migrate(normalizeDSN(dsn)); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(dsn string) error {
	var (
		dir    string
		dbName string
		driver database.Driver
		err    error
		owned  bool
	)
	switch s.driver {
	case DriverPostgres:
		// the pgx driver pins a connection and closes its *sql.DB on Close,
		// so it gets a handle of its own
		mdb, openErr := sql.Open("pgx", dsn)
		if openErr != nil {
			return fmt.Errorf("failed to open migration connection: %w", openErr)
		}
		dir, dbName, owned = "postgres", "pgx5", true
		driver, err = migratepgx.WithInstance(mdb, &migratepgx.Config{})
		if err != nil {
			mdb.Close()
		}
	default:
		dir, dbName = "sqlite", "sqlite3"
		driver, err = sqlite3.WithInstance(s.db.DB, &sqlite3.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	sub, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if owned {
		defer m.Close()
	} else {
		// closing the sqlite driver would close the shared pool
		defer source.Close()
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			s.logger.Debug("no database migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	s.logger.Info("database migrations applied", zap.String("driver", s.driver))
	return nil
}

// WithTx runs fn in a transaction; fn's error rolls it back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Error("failed to roll back transaction", zap.Error(rbErr))
			}
		}
	}()

	if err := fn(&Tx{queries: queries{ext: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil
	return nil
}

func (q queries) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return translate(sqlx.GetContext(ctx, q.ext, dest, q.ext.Rebind(query), args...))
}

func (q queries) sel(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return translate(sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...))
}

func (q queries) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
	if err != nil {
		return 0, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	var liteErr gosqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == gosqlite3.ErrConstraint &&
		(liteErr.ExtendedCode == gosqlite3.ErrConstraintUnique || liteErr.ExtendedCode == gosqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %s", ErrConflict, liteErr.Error())
	}
	return err
}

// normalizeDSN strips driver suffixes some tooling adds to the scheme.
func normalizeDSN(dsn string) string {
	for _, prefix := range []string{"postgresql+asyncpg://", "postgresql+pgx://", "postgres+pgx://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "postgres://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

func now() time.Time {
	return time.Now().UTC()
}
