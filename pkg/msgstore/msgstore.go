// Package msgstore persists messages in sqlite.
// The relay server uses a Store as its durable log, and clients use one as their local cache.
package msgstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roostchat/roost/pkg/dbutil"
	"github.com/roostchat/roost/pkg/message"
	"github.com/roostchat/roost/pkg/migrations"
	"github.com/roostchat/roost/pkg/slices2"
)

// StorageError is returned for any failure reading or writing the store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

var schema = migrations.InitialState().
	ApplyStmt(`CREATE TABLE text_msg (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		author TEXT NOT NULL,
		ts INTEGER NOT NULL,
		body TEXT NOT NULL
	)`).
	ApplyStmt(`CREATE TABLE image_msg (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		author TEXT NOT NULL,
		ts INTEGER NOT NULL,
		data BLOB NOT NULL
	)`).
	Apply(func(tx migrations.TxAPI) error {
		for _, q := range []string{
			`CREATE INDEX text_msg_ts ON text_msg (ts)`,
			`CREATE INDEX image_msg_ts ON image_msg (ts)`,
		} {
			if _, err := tx.Exec(q); err != nil {
				return err
			}
		}
		return nil
	})

type Store struct {
	db *sqlx.DB
}

// Open opens, and creates if necessary, the store at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := dbutil.OpenSQLite(path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates a Store on db, migrating its schema.
func New(ctx context.Context, db *sqlx.DB) (*Store, error) {
	if err := migrations.Migrate(ctx, db, schema); err != nil {
		return nil, &StorageError{Op: "migrate", Err: err}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append records m. The payload kind decides which table it goes to.
func (s *Store) Append(ctx context.Context, m message.Message) error {
	if err := m.Validate(); err != nil {
		return &StorageError{Op: "append", Err: err}
	}
	var err error
	if text, ok := m.Payload.Text(); ok {
		_, err = s.db.ExecContext(ctx, `INSERT INTO text_msg (author, ts, body) VALUES (?, ?, ?)`, m.Author, int64(m.Timestamp), text)
	} else {
		data, _ := m.Payload.Image()
		_, err = s.db.ExecContext(ctx, `INSERT INTO image_msg (author, ts, data) VALUES (?, ?, ?)`, m.Author, int64(m.Timestamp), data)
	}
	if err != nil {
		return &StorageError{Op: "append", Err: err}
	}
	return nil
}

// Since returns every message with a timestamp strictly after since, from both record kinds.
// The result is in ascending timestamp order.
func (s *Store) Since(ctx context.Context, since message.Timestamp) ([]message.Message, error) {
	ms, err := dbutil.DoTx1(ctx, s.db, func(tx *sqlx.Tx) ([]message.Message, error) {
		return selectMessages(tx, `WHERE ts > ?`, int64(since))
	})
	if err != nil {
		return nil, &StorageError{Op: "since", Err: err}
	}
	return ms, nil
}

// All returns every stored message in ascending timestamp order.
func (s *Store) All(ctx context.Context) ([]message.Message, error) {
	ms, err := dbutil.DoTx1(ctx, s.db, func(tx *sqlx.Tx) ([]message.Message, error) {
		return selectMessages(tx, ``)
	})
	if err != nil {
		return nil, &StorageError{Op: "all", Err: err}
	}
	return ms, nil
}

// Count returns the number of stored records of both kinds.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT (SELECT count(*) FROM text_msg) + (SELECT count(*) FROM image_msg)`)
	if err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return n, nil
}

type textRow struct {
	Author string `db:"author"`
	TS     int64  `db:"ts"`
	Body   string `db:"body"`
}

type imageRow struct {
	Author string `db:"author"`
	TS     int64  `db:"ts"`
	Data   []byte `db:"data"`
}

func selectMessages(tx dbutil.Reader, where string, args ...interface{}) ([]message.Message, error) {
	var texts []textRow
	if err := tx.Select(&texts, `SELECT author, ts, body FROM text_msg `+where+` ORDER BY ts, id`, args...); err != nil {
		return nil, err
	}
	var images []imageRow
	if err := tx.Select(&images, `SELECT author, ts, data FROM image_msg `+where+` ORDER BY ts, id`, args...); err != nil {
		return nil, err
	}
	a := make([]message.Message, len(texts))
	for i, r := range texts {
		a[i] = message.NewText(r.Author, message.Timestamp(r.TS), r.Body)
	}
	b := make([]message.Message, len(images))
	for i, r := range images {
		b[i] = message.NewImage(r.Author, message.Timestamp(r.TS), r.Data)
	}
	return slices2.Merge(a, b, message.Less), nil
}
