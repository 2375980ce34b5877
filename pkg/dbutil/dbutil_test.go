package dbutil

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func TestDoTx(t *testing.T) {
	ctx := context.Background()
	db := NewTestDB(t)
	_, err := db.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v INTEGER)`)
	require.NoError(t, err)

	err = DoTx(ctx, db, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO kv (k, v) VALUES ('a', 1)`)
		return err
	})
	require.NoError(t, err)

	// a failing fn rolls back
	errBoom := errors.New("boom")
	err = DoTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`INSERT INTO kv (k, v) VALUES ('b', 2)`); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	n, err := DoTx1(ctx, db, func(tx *sqlx.Tx) (int, error) {
		var n int
		err := tx.Get(&n, `SELECT count(*) FROM kv`)
		return n, err
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	k, v, err := DoTx2(ctx, db, func(tx *sqlx.Tx) (string, int, error) {
		var x struct {
			K string `db:"k"`
			V int    `db:"v"`
		}
		err := tx.Get(&x, `SELECT k, v FROM kv`)
		return x.K, x.V, err
	})
	require.NoError(t, err)
	require.Equal(t, "a", k)
	require.Equal(t, 1, v)
}
