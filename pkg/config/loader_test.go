package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_DefaultsAndEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("CRYPTOPAY_TOKEN", "pay-token")
	t.Setenv("ADMINS", "42,43")

	cfg, v, err := LoadFrom(t.TempDir(), "test")
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "test", cfg.AppEnv)
	assert.Equal(t, "123:abc", cfg.Bot.Token)
	assert.Equal(t, "pay-token", cfg.CryptoPay.Token)
	assert.Equal(t, "TON", cfg.CryptoPay.Asset)
	assert.Equal(t, int64(5), cfg.Rewards.Amount)
	assert.Equal(t, 12*time.Hour, cfg.Rewards.Cooldown)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.Interval)
	assert.Equal(t, []int64{42, 43}, cfg.Admins)
	assert.True(t, cfg.IsAdmin(43))
	assert.False(t, cfg.IsAdmin(44))

	require.Len(t, cfg.Packs, 3)
	assert.Equal(t, "pack1", cfg.Packs[0].ID)
	assert.Equal(t, int64(100), cfg.Packs[0].Coins)
	assert.Equal(t, "0.05", cfg.Packs[0].Price)
}

func TestLoadFrom_YAMLOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("CRYPTOPAY_TOKEN", "pay-token")

	dir := t.TempDir()
	yaml := `
rewards:
  amount: 7
  cooldown: 6h
packs:
  - id: mini
    name: 10 coins
    coins: 10
    price: "0.01"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staging.yaml"), []byte(yaml), 0o600))

	cfg, v, err := LoadFrom(dir, "staging")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "staging.yaml"), v.ConfigFileUsed())
	assert.Equal(t, int64(7), cfg.Rewards.Amount)
	assert.Equal(t, 6*time.Hour, cfg.Rewards.Cooldown)
	require.Len(t, cfg.Packs, 1)
	assert.Equal(t, "mini", cfg.Packs[0].ID)
}

func TestLoadFrom_MissingSecrets(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("CRYPTOPAY_TOKEN", "")

	_, _, err := LoadFrom(t.TempDir(), "test")
	assert.Error(t, err)
}

func TestValidate_DuplicatePack(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("CRYPTOPAY_TOKEN", "pay-token")

	cfg, _, err := LoadFrom(t.TempDir(), "test")
	require.NoError(t, err)

	cfg.Packs = append(cfg.Packs, cfg.Packs[0])
	assert.ErrorContains(t, Validate(cfg), "duplicate pack id")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	dsn := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "n"}.DSN()
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", dsn)
}
