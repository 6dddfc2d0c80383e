package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/reminder-dispatcher/internal/errs"
)

func writeConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

const memoryConfig = `
store:
  driver: memory
email:
  enabled: true
  api_key: re_test
`

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DISPATCH_SECRET", "s3cret")
	dir := writeConfig(t, memoryConfig)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, ":8080", cfg.Server.HTTPPort)
	assert.Equal(t, "Reminders <onboarding@example.com>", cfg.Email.From)
	assert.Equal(t, "api", cfg.Email.Transport)
	assert.Equal(t, 30*time.Second, cfg.Dispatcher.DeliveryTimeout)
	assert.Equal(t, 3, cfg.Dispatcher.ErrorPreview)
	assert.True(t, cfg.Dispatcher.RetryFailed)
	assert.Equal(t, "email", cfg.Dispatcher.DefaultChannel)
	assert.Equal(t, []string{"due_at", "remind_at", "scheduled_at", "send_at", "due_time"}, cfg.Store.DueColumnCandidates)
	assert.Equal(t, 3, cfg.Retry.Attempts)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DISPATCH_SECRET", "s3cret")
	t.Setenv("EMAIL_FROM", "Ops <ops@example.com>")
	t.Setenv("DUE_COLUMN", "remind_at")
	t.Setenv("ALLOW_ORIGINS", "https://a.example.com, https://b.example.com")
	dir := writeConfig(t, memoryConfig)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "Ops <ops@example.com>", cfg.Email.From)
	assert.Equal(t, "remind_at", cfg.Store.DueColumn)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowOrigins)
}

func TestLoad_MissingSecret(t *testing.T) {
	dir := writeConfig(t, memoryConfig)

	_, err := Load(dir)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestLoad_MissingEmailKey(t *testing.T) {
	t.Setenv("DISPATCH_SECRET", "s3cret")
	dir := writeConfig(t, `
store:
  driver: memory
email:
  enabled: true
`)

	_, err := Load(dir)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestLoad_PostgresNeedsDatabase(t *testing.T) {
	t.Setenv("DISPATCH_SECRET", "s3cret")
	dir := writeConfig(t, `
store:
  driver: postgres
email:
  enabled: true
  api_key: re_test
`)

	_, err := Load(dir)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.ErrorContains(t, err, "database")
}

func TestValidate_DefaultChannelMustBeEnabled(t *testing.T) {
	t.Setenv("DISPATCH_SECRET", "s3cret")
	dir := writeConfig(t, `
store:
  driver: memory
email:
  enabled: true
  api_key: re_test
dispatcher:
  default_channel: chat
`)

	_, err := Load(dir)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.ErrorContains(t, err, "default channel")
}

func TestValidate_RunLockNeedsRedis(t *testing.T) {
	t.Setenv("DISPATCH_SECRET", "s3cret")
	dir := writeConfig(t, memoryConfig+`
dispatcher:
  run_lock:
    enabled: true
`)

	_, err := Load(dir)
	assert.ErrorContains(t, err, "redis")
}

func TestDatabaseNode_DSN(t *testing.T) {
	n := DatabaseNode{Host: "db", Port: "5432", User: "u", Pass: "p", Name: "reminders", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/reminders?sslmode=disable", n.DSN())
}

func TestValidate_RunLockTTLCoversDelivery(t *testing.T) {
	t.Setenv("DISPATCH_SECRET", "s3cret")
	dir := writeConfig(t, memoryConfig+`
redis:
  address: localhost:6379
dispatcher:
  delivery_timeout: 30s
  run_lock:
    enabled: true
    ttl: 10s
`)

	_, err := Load(dir)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.ErrorContains(t, err, "run_lock.ttl")
}

func TestLoad_StatusTTLDefault(t *testing.T) {
	t.Setenv("DISPATCH_SECRET", "s3cret")
	dir := writeConfig(t, memoryConfig)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.Redis.StatusTTL)
}
