package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "postgres", c.Backend.Type)
	assert.Equal(t, "DAM", c.Query.DefaultMarket)
	assert.Equal(t, []string{"DAM", "GDAM", "RTM"}, c.Query.EnabledMarkets)
	assert.Equal(t, "Asia/Kolkata", c.Query.Timezone)
	assert.Equal(t, 10*time.Second, c.Fallback.Timeout)
	assert.Equal(t, 24*time.Hour, c.Cache.HistoricalTTL)
	assert.Equal(t, "emspark.report-requests", c.Kafka.Topics.Requests)
	assert.False(t, c.Queue.Enabled)
	assert.Equal(t, "emspark:queue", c.Queue.KeyPrefix)
	assert.Equal(t, 2, c.Fallback.Retries)
	assert.True(t, c.Fallback.Enabled)
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
server:
  port: 9090
backend:
  type: clickhouse
query:
  default_market: GDAM
  enabled_markets: [DAM, GDAM]
fallback:
  enabled: false
`))
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "clickhouse", c.Backend.Type)
	assert.Equal(t, "GDAM", c.Query.DefaultMarket)
	assert.Equal(t, []string{"DAM", "GDAM"}, c.Query.EnabledMarkets)
	assert.False(t, c.Fallback.Enabled)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]string{
		"backend":       "backend:\n  type: kafka\n",
		"market":        "query:\n  default_market: XYZ\n",
		"enabled":       "query:\n  enabled_markets: [DAM, TAM]\n",
		"timezone":      "query:\n  timezone: Mars/Olympus\n",
		"port":          "server:\n  port: 70000\n",
		"rate mode":     "server:\n  rate_limit:\n    mode: global\n",
		"kafka brokers": "kafka:\n  enabled: true\n",
		"queue memory":  "queue:\n  enabled: true\ncache:\n  memory_only: true\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)

	env := map[string]string{
		"BACKEND":                 "clickhouse",
		"DATABASE_URL":            "postgres://u:p@db:5432/power",
		"OPENAI_API_KEY":          "sk-test",
		"KAFKA_BROKERS":           "k1:9092,k2:9092",
		"EMSPARK_PORT":            "9000",
		"EMSPARK_KAFKA_ENABLED":   "true",
		"EMSPARK_ENABLED_MARKETS": "DAM,RTM",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	require.NoError(t, c.ApplyEnv(lookup))

	assert.Equal(t, "clickhouse", c.Backend.Type)
	assert.Equal(t, "postgres://u:p@db:5432/power", c.Postgres.URL)
	assert.Equal(t, "sk-test", c.Fallback.APIKey)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 9000, c.Server.Port)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"DAM", "RTM"}, c.Query.EnabledMarkets)
	assert.NoError(t, c.Validate())

	env["EMSPARK_PORT"] = "eighty"
	assert.Error(t, c.ApplyEnv(lookup))
}
