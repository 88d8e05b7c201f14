package logger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	digests []Digest
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload []byte) error {
	var d Digest
	if err := json.Unmarshal(payload, &d); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.digests = append(p.digests, d)
	return nil
}

func TestCollectorDeduplicatesErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{
		Service:        "emspark",
		TimeInterval:   time.Hour,
		CountThreshold: 10,
		Topic:          "errors",
		Publisher:      pub,
	})

	for i := 0; i < 3; i++ {
		l.Error("fetch failed", String("market", "DAM"), Error(errors.New("timeout")))
	}
	l.Error("fetch failed", String("market", "RTM"), Error(errors.New("timeout")))
	l.Warn("not collected")
	l.RemoveCollector()

	require.Len(t, pub.digests, 1)
	d := pub.digests[0]
	assert.Equal(t, "errors", pub.topic)
	assert.Equal(t, "emspark", d.Service)
	require.Len(t, d.Entries, 2)
	assert.Equal(t, 3, d.Entries[0].Count)
	assert.Equal(t, "DAM", d.Entries[0].Fields["market"])
	assert.Equal(t, 1, d.Entries[1].Count)
	assert.Contains(t, d.Entries[0].Caller, "logger_test.go")
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")
	c.AddLog("error", "c", nil, "x.go:3")
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.digests, 2)
	total := 0
	for _, d := range pub.digests {
		total += len(d.Entries)
	}
	assert.Equal(t, 3, total)
}

func TestWithCarriesFields(t *testing.T) {
	l, err := New(&Config{Level: "info", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	child := l.With(String("component", "parser"))
	assert.NotNil(t, child)
	assert.NotSame(t, l, child)
}

type testMarket string

type testSpec struct{ text string }

func (s testSpec) String() string { return s.text }

func readEntries(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var out []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestDomainFieldsAreWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path, Service: "emspark"})
	require.NoError(t, err)

	l.Debug("dropped below level")
	l.Warn("Partial fetch failed",
		Market(testMarket("GDAM")),
		Spec(testSpec{"GDAM 2025-11-18..2025-11-18 hour"}),
		Source("rules"),
		Duration("elapsed", 1500*time.Millisecond),
		Error(errors.New("timeout")),
	)

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "warn", e["level"])
	assert.Equal(t, "emspark", e["service"])
	assert.Equal(t, "GDAM", e["market"])
	assert.Equal(t, "GDAM 2025-11-18..2025-11-18 hour", e["spec"])
	assert.Equal(t, "rules", e["source"])
	assert.Equal(t, float64(1500), e["elapsed"])
	assert.Equal(t, "timeout", e["error"])
	assert.Contains(t, e["caller"], "logger_test.go")
}

func TestChildLoggerFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Format: "json", Output: path})
	require.NoError(t, err)

	l.With(Market(testMarket("RTM")), Int("worker_id", 2)).Info("job done")

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "RTM", entries[0]["market"])
	assert.Equal(t, float64(2), entries[0]["worker_id"])
	assert.NotContains(t, entries[0], "service")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stderr"})
	assert.Error(t, err)
}
