package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/trezcool/darasa/core"
	appfs "github.com/trezcool/darasa/fs"
	"github.com/trezcool/darasa/storage/docstore"
)

// Store keeps documents in a single JSONB relation:
//   documents(collection text, id text, doc jsonb, PRIMARY KEY (collection, id))
// The primary key gives us the conditional create the Record Store contract
// recommends for closing check-then-create race windows.
type Store struct {
	db *sqlx.DB
}

var _ docstore.Store = (*Store)(nil)

func Open(conf *core.Config) (*Store, error) {
	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     url.UserPassword(conf.Database.User, conf.Database.Password),
		Host:     conf.Database.Address(),
		Path:     conf.Database.Name,
		RawQuery: q.Encode(),
	}
	db, err := sqlx.Open(conf.Database.Engine, u.String())
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying connection for migration tooling.
func (s *Store) DB() *sql.DB { return s.db.DB }

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate() error {
	if err := goose.Up(s.db.DB, appfs.FS, "migrations"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, coll, id string) (json.RawMessage, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2`, coll, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err, "getting document")
	}
	return raw, nil
}

func (s *Store) Create(ctx context.Context, coll, id string, doc interface{}) error {
	raw, err := docstore.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		coll, id, []byte(raw),
	)
	if err != nil {
		return unavailable(err, "creating document")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return docstore.ErrExists
	}
	return nil
}

func (s *Store) Put(ctx context.Context, coll, id string, doc interface{}) error {
	raw, err := docstore.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO UPDATE SET doc = EXCLUDED.doc`,
		coll, id, []byte(raw),
	)
	if err != nil {
		return unavailable(err, "putting document")
	}
	return nil
}

func (s *Store) Update(ctx context.Context, coll, id string, fields map[string]interface{}) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return errors.Wrap(err, "marshaling fields")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET doc = doc || $3 WHERE collection = $1 AND id = $2`,
		coll, id, raw,
	)
	if err != nil {
		return unavailable(err, "updating document")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, coll, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, coll, id,
	); err != nil {
		return unavailable(err, "deleting document")
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, coll string, filters ...docstore.Filter) ([]json.RawMessage, error) {
	query := `SELECT doc FROM documents WHERE collection = $1`
	args := []interface{}{coll}
	for _, f := range filters {
		// doc->>'field' yields text; normalize the filter value to match
		args = append(args, fmt.Sprintf("%v", f.Value))
		query += ` AND doc->>'` + f.Field + `' = $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err, "scanning collection")
	}
	defer func() { _ = rows.Close() }()

	var res []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			return nil, unavailable(err, "scanning collection")
		}
		res = append(res, raw)
	}
	if err = rows.Err(); err != nil {
		return nil, unavailable(err, "scanning collection")
	}
	return res, nil
}

// unavailableError keeps the driver failure message while resolving to
// docstore.ErrUnavailable through errors.Cause.
type unavailableError struct {
	err error
	msg string
}

func unavailable(err error, msg string) error {
	return &unavailableError{err: err, msg: msg}
}

func (e *unavailableError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *unavailableError) Cause() error  { return docstore.ErrUnavailable }
