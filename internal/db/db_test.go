package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietanh2810/sdeconomy/internal/config"
)

func TestOpenSQLite_ForeignKeysOn(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "economy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	var enabled int
	require.NoError(t, db.Raw("PRAGMA foreign_keys").Scan(&enabled).Error)
	assert.Equal(t, 1, enabled)
}

func TestOpen_Dispatch(t *testing.T) {
	conf := &config.AppConfig{Storage: &config.StorageConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "economy.db"),
	}}
	db, err := Open(conf)
	require.NoError(t, err)
	require.NoError(t, Close(db))

	conf.Storage.Driver = "oracle"
	_, err = Open(conf)
	assert.ErrorIs(t, err, config.ErrUnknownDriver)
}

func TestOpenMySQL_InvalidDSN(t *testing.T) {
	_, err := OpenMySQL("not a dsn")
	assert.ErrorContains(t, err, "mysql.ParseDSN")
}
