package repositories_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/db"
)

func openSQLite(t *testing.T, path string) *db.Database {
	t.Helper()
	database, err := db.NewSQLiteDatabase(path)
	require.NoError(t, err)
	require.NoError(t, database.Migrate())
	return database
}

func newTestDatabase(t *testing.T) *db.Database {
	t.Helper()
	database := openSQLite(t, filepath.Join(t.TempDir(), "engine.db"))
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
