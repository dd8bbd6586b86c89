package config

import (
	"strings"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsToInMemoryBackends(t *testing.T) {
	for _, key := range []string{"SCYLLA_HOSTS", "MONGO_URI", "REDIS_URL", "KAFKA_BROKERS", "S3_ENDPOINT", "RETRY_BACKOFF", "OUTBOX_POLL_INTERVAL", "KAFKA_GROUP_ID"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.UseScylla())
	assert.False(t, cfg.UseMongo())
	assert.False(t, cfg.UseRedis())
	assert.False(t, cfg.UseKafka())
	assert.False(t, cfg.UseS3())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 100*time.Millisecond, cfg.OutboxPollInterval)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, cfg.RetryBackoff)
	assert.Equal(t, gocql.Quorum, cfg.ScyllaConsistency)
	assert.True(t, strings.HasPrefix(cfg.KafkaGroupID, "chatd-gateway"))
}

func TestLoadParsesBackends(t *testing.T) {
	t.Setenv("SCYLLA_HOSTS", "scylla-1, scylla-2,,")
	t.Setenv("SCYLLA_CONSISTENCY", "local_quorum")
	t.Setenv("KAFKA_BROKERS", "kafka:9092")
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("S3_USE_SSL", "yes")
	t.Setenv("USER_CACHE_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"scylla-1", "scylla-2"}, cfg.ScyllaHosts)
	assert.Equal(t, gocql.LocalQuorum, cfg.ScyllaConsistency)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, "http://minio:9000", cfg.S3PublicEndpoint)
	assert.Equal(t, 90*time.Second, cfg.UserCacheTTL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("RETRY_BACKOFF", "1s,soon")
	_, err := Load()
	assert.ErrorContains(t, err, "RETRY_BACKOFF")

	t.Setenv("RETRY_BACKOFF", "")
	t.Setenv("S3_USE_SSL", "maybe")
	_, err = Load()
	assert.ErrorContains(t, err, "S3_USE_SSL")
}
