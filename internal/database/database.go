package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"dovakin0007.com/notebook-grpc/internal/kernel"
	"dovakin0007.com/notebook-grpc/internal/models"
	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const driverName = "postgres"

const ddl = `
CREATE TABLE IF NOT EXISTS users (
    id          TEXT PRIMARY KEY,
    username    TEXT NOT NULL UNIQUE,
    email       TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notebooks (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL,
    owner_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    root_id      TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    modified_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notebook_members (
    notebook_id  TEXT NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
    user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    role         TEXT NOT NULL CHECK (role IN ('writer', 'reader')),
    PRIMARY KEY (notebook_id, user_id)
);

CREATE TABLE IF NOT EXISTS nodes (
    id           TEXT PRIMARY KEY,
    notebook_id  TEXT NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
    parent_id    TEXT REFERENCES nodes(id) ON DELETE CASCADE,
    position     INTEGER NOT NULL DEFAULT 0,
    node_type    TEXT NOT NULL CHECK (node_type IN ('Section', 'InputCell', 'TextCell')),
    comment      TEXT NOT NULL DEFAULT '',
    title        TEXT NOT NULL DEFAULT '',
    input        TEXT NOT NULL DEFAULT '',
    output       TEXT NOT NULL DEFAULT '',
    format       TEXT NOT NULL DEFAULT '',
    text_data    TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    modified_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS node_tags (
    node_id  TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    tag      TEXT NOT NULL,
    PRIMARY KEY (node_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_nodes_notebook_id      ON nodes(notebook_id);
CREATE INDEX IF NOT EXISTS idx_nodes_parent_position  ON nodes(parent_id, position);
CREATE INDEX IF NOT EXISTS idx_members_user_id        ON notebook_members(user_id);
CREATE INDEX IF NOT EXISTS idx_notebooks_owner_id     ON notebooks(owner_id);
`

// Database is the PostgreSQL notebook store. Notebook mutations lock the
// notebook row, rebuild the tree in memory, check it with the models package
// and write back only the rows that changed.
type Database struct {
	Mu     *sync.RWMutex
	Db     *sqlx.DB
	Kernel kernel.Executor
	Logger hclog.Logger

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

func New(db *sqlx.DB, exec kernel.Executor, logger hclog.Logger) *Database {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Database{
		Mu:     &sync.RWMutex{},
		Db:     db,
		Kernel: exec,
		Logger: logger,
	}
}

func DSN(host, port, user, password, name string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", host, port, user, password, name)
}

// Open connects and creates the schema.
func Open(ctx context.Context, dsn string, exec kernel.Executor, logger hclog.Logger) (*Database, error) {
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	d := New(db, exec, logger)
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) migrate(ctx context.Context) error {
	if _, err := d.Db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	if d.Db != nil {
		return d.Db.Close()
	}
	return nil
}

func (d *Database) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *Database) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}

func (d *Database) logger() hclog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return hclog.NewNullLogger()
}

func (d *Database) ConnectUser(ctx context.Context, username, email string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is empty", models.ErrInvalidArgument)
	}
	d.Mu.Lock()
	defer d.Mu.Unlock()

	query, args, err := psql.Select("id", "username", "email", "created_at").
		From("users").
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var u models.User
	err = d.Db.GetContext(ctx, &u, query, args...)
	switch {
	case err == nil:
		if email != "" && u.Email != email {
			return nil, fmt.Errorf("%w: email does not match user %s", models.ErrPermissionDenied, username)
		}
		return &u, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("look up user %s: %w", username, err)
	case email == "":
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, username)
	}

	query, args, err = psql.Insert("users").
		Columns("id", "username", "email", "created_at").
		Values(d.newID(), username, email, d.now()).
		Suffix("RETURNING id, username, email, created_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := d.Db.GetContext(ctx, &u, query, args...); err != nil {
		return nil, fmt.Errorf("create user %s: %w", username, err)
	}
	d.logger().Info("created user", "user", u.ID, "username", username)
	return &u, nil
}

func (d *Database) GetUsers(ctx context.Context) ([]models.User, error) {
	d.Mu.RLock()
	defer d.Mu.RUnlock()
	query, args, err := psql.Select("id", "username", "email", "created_at").
		From("users").
		OrderBy("username").
		ToSql()
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := d.Db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (d *Database) userExists(ctx context.Context, q sqlx.QueryerContext, userID string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID); err != nil {
		return false, fmt.Errorf("look up user %s: %w", userID, err)
	}
	return exists, nil
}
