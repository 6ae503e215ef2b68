package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mstgnz/gopaytr/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "data", "gopaytr.db")

	storage, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := newTestStorage(t)

	assert.NotNil(t, storage.db)
	_, err := os.Stat(storage.path)
	assert.NoError(t, err, "database file should be created")
}

func TestSQLiteStorage_SaveAndLoad(t *testing.T) {
	storage := newTestStorage(t)
	creds := provider.Credentials{MerchantID: "100", MerchantKey: "key", MerchantSalt: "salt"}

	require.NoError(t, storage.SaveCredentials("default", creds))

	loaded, err := storage.LoadCredentials("default")
	require.NoError(t, err)
	assert.Equal(t, creds, loaded)

	updated := provider.Credentials{MerchantID: "200", MerchantKey: "key2", MerchantSalt: "salt2"}
	require.NoError(t, storage.SaveCredentials("default", updated))

	loaded, err = storage.LoadCredentials("default")
	require.NoError(t, err)
	assert.Equal(t, updated, loaded)
}

func TestSQLiteStorage_SaveRejectsIncomplete(t *testing.T) {
	storage := newTestStorage(t)

	err := storage.SaveCredentials("default", provider.Credentials{MerchantID: "100"})
	assert.True(t, errors.Is(err, provider.ErrMissingCredentials))

	assert.Error(t, storage.SaveCredentials("", provider.Credentials{MerchantID: "1", MerchantKey: "k", MerchantSalt: "s"}))
}

func TestSQLiteStorage_LoadMissing(t *testing.T) {
	storage := newTestStorage(t)

	_, err := storage.LoadCredentials("nope")
	assert.True(t, errors.Is(err, ErrProfileNotFound))
}

func TestSQLiteStorage_ListAndDelete(t *testing.T) {
	storage := newTestStorage(t)

	require.NoError(t, storage.SaveCredentials("shop-b", provider.Credentials{MerchantID: "2", MerchantKey: "k", MerchantSalt: "s"}))
	require.NoError(t, storage.SaveCredentials("shop-a", provider.Credentials{MerchantID: "1", MerchantKey: "k", MerchantSalt: "s"}))

	profiles, err := storage.ListProfiles()
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "shop-a", profiles[0].Profile)
	assert.Equal(t, "1", profiles[0].MerchantID)
	assert.Equal(t, "shop-b", profiles[1].Profile)

	require.NoError(t, storage.DeleteCredentials("shop-a"))
	assert.True(t, errors.Is(storage.DeleteCredentials("shop-a"), ErrProfileNotFound))

	stats, err := storage.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats["total_profiles"])
	assert.Equal(t, storage.path, stats["db_path"])
}

func TestSQLiteStorage_ImplementsCredentialStore(t *testing.T) {
	var _ CredentialStore = (*SQLiteStorage)(nil)

	storage := newTestStorage(t)
	require.NoError(t, storage.SaveCredentials("default", provider.Credentials{MerchantID: "9", MerchantKey: "k", MerchantSalt: "s"}))

	cfg := &PaytrConfig{MerchantProfile: "default"}
	require.NoError(t, cfg.ApplyStore(storage))
	assert.Equal(t, "9", cfg.MerchantID)
}
