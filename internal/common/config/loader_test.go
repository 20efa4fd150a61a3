package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
camunda:
  broker_address: zeebe:26500
database:
  postgres:
    host: db
    database: notifications
    user: dispatch
`

// ==========================
// Load Tests
// ==========================

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "notification-dispatch", cfg.App.Name)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.ChannelTimeoutDuration())
	assert.Equal(t, 8, cfg.Dispatch.MaxParallel)
	assert.Equal(t, time.Duration(0), cfg.Dispatch.SubscriberCacheTTLDuration())
	assert.Equal(t, "delivery-logs", cfg.Database.Elasticsearch.LogIndex)
	assert.Equal(t, ":8080", cfg.Observability.MetricsAddress)
	assert.Equal(t, "notification-dispatch", cfg.Observability.ServiceName)
	assert.NotNil(t, cfg.Workers)
}

func TestLoadFromFile_WorkerDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
workers:
  dispatch-message:
    enabled: true
`))
	require.NoError(t, err)

	w := cfg.Workers["dispatch-message"]
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)
	assert.Equal(t, 3, w.MaxRetries)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_DISPATCH_DB_PASSWORD", "s3cret")

	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
    password: ${TEST_DISPATCH_DB_PASSWORD}
`))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Postgres.Password)
}

func TestLoadFromFile_ShippedConfig(t *testing.T) {
	t.Setenv("DB_USER", "dispatch")

	cfg, err := LoadFromFile(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), cfg.Dispatch.SubscriberCacheTTLDuration())
	assert.True(t, cfg.Dispatch.RedactAddresses)
	assert.Equal(t, 8, cfg.Dispatch.MaxParallel)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing broker",
			body:    "database:\n  postgres:\n    host: db\n    database: n\n    user: u\n",
			wantErr: "camunda.broker_address is required",
		},
		{
			name:    "redis enabled without address",
			body:    minimalConfig + "  redis:\n    enabled: true\n",
			wantErr: "database.redis.address is required when enabled",
		},
		{
			name:    "elasticsearch enabled without address",
			body:    minimalConfig + "  elasticsearch:\n    enabled: true\n",
			wantErr: "database.elasticsearch.addresses or url is required when enabled",
		},
		{
			name:    "sns enabled without topic",
			body:    minimalConfig + "integrations:\n  aws:\n    sns:\n      enabled: true\n",
			wantErr: "integrations.aws.sns.topic_arn is required when sns is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DISPATCH_EVENTS_TOPIC_ARN", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{}}

	w := GetWorkerConfig(cfg, "unknown")
	assert.True(t, w.Enabled)
	assert.Equal(t, 3, w.MaxRetries)
	assert.True(t, IsWorkerEnabled(cfg, "unknown"))

	cfg.Workers["off"] = WorkerConfig{Enabled: false}
	assert.False(t, IsWorkerEnabled(cfg, "off"))
}

func TestElasticsearchConfig_GetAddresses(t *testing.T) {
	assert.Equal(t, []string{"http://es:9200"}, ElasticsearchConfig{URL: "http://es:9200"}.GetAddresses())
	assert.Equal(t, []string{"a", "b"}, ElasticsearchConfig{Addresses: []string{"a", "b"}, URL: "c"}.GetAddresses())
	assert.Nil(t, ElasticsearchConfig{}.GetAddresses())
}
