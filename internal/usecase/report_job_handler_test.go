package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EMSpark/internal/domain/models"
	"EMSpark/pkg/cache"
	pkgkafka "EMSpark/pkg/kafka"
	"EMSpark/pkg/queue"
)

type fakeAnswerer struct {
	mu    sync.Mutex
	calls []models.ReportRequest
	err   error
}

func (f *fakeAnswerer) Answer(_ context.Context, req models.ReportRequest) (models.ReportResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	resp := models.ReportResponse{ID: req.ID, Format: req.Format, Body: "ok"}
	if f.err != nil {
		resp.Error = f.err.Error()
	}
	return resp, f.err
}

func TestReportJobHandlerAnswersOnce(t *testing.T) {
	ans := &fakeAnswerer{}
	out := &fakeEvents{}
	mc := cache.NewMemoryCache()
	defer mc.Close()
	h := newReportJobHandler("reports", ans, out, mc, nil, nil)

	assert.Equal(t, "reports", h.Topic())
	payload := []byte(`{"id":"job-7","query":"DAM today"}`)
	require.NoError(t, h.Handle(context.Background(), payload))
	require.NoError(t, h.Handle(context.Background(), payload))

	require.Len(t, ans.calls, 1)
	assert.Equal(t, "markdown", ans.calls[0].Format)
	require.Len(t, out.reports, 1)
	assert.Equal(t, "job-7", out.reports[0].ID)
}

func TestReportJobHandlerRequestIDFromHeader(t *testing.T) {
	ans := &fakeAnswerer{}
	h := newReportJobHandler("reports", ans, &fakeEvents{}, nil, nil, nil)

	ctx := pkgkafka.WithRequestID(context.Background(), "hdr-1")
	require.NoError(t, h.Handle(ctx, []byte(`{"query":"RTM yesterday","format":"json"}`)))
	require.Len(t, ans.calls, 1)
	assert.Equal(t, "hdr-1", ans.calls[0].ID)
}

func TestReportJobHandlerPermanentErrors(t *testing.T) {
	h := newReportJobHandler("reports", &fakeAnswerer{}, &fakeEvents{}, nil, nil, nil)

	for name, payload := range map[string]string{
		"not json":     `{`,
		"no query":     `{"id":"a"}`,
		"wrong format": `{"query":"DAM today","format":"pdf"}`,
	} {
		t.Run(name, func(t *testing.T) {
			err := h.Handle(context.Background(), []byte(payload))
			var he *pkgkafka.HookError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, pkgkafka.CodePermanent, he.Code)
		})
	}
}

func TestReportJobHandlerUnresolvedPublishesError(t *testing.T) {
	out := &fakeEvents{}
	h := newReportJobHandler("reports", &fakeAnswerer{err: ErrUnresolvedQuery}, out, nil, nil, nil)

	require.NoError(t, h.Handle(context.Background(), []byte(`{"id":"u","query":"???"}`)))
	require.Len(t, out.reports, 1)
	assert.Equal(t, ErrUnresolvedQuery.Error(), out.reports[0].Error)
}

func TestReportJobHandlerRetriesReleaseLock(t *testing.T) {
	boom := errors.New("store down")
	ans := &fakeAnswerer{err: boom}
	mc := cache.NewMemoryCache()
	defer mc.Close()
	h := newReportJobHandler("reports", ans, &fakeEvents{}, mc, nil, nil)

	payload := []byte(`{"id":"r","query":"DAM today"}`)
	assert.ErrorIs(t, h.Handle(context.Background(), payload), boom)

	ans.err = nil
	require.NoError(t, h.Handle(context.Background(), payload))
	assert.Len(t, ans.calls, 2)
}

func TestReportJobHandlerStoresResult(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	h := newReportJobHandler("reports", &fakeAnswerer{}, &fakeEvents{}, mc, nil, nil)
	ctx := context.Background()

	_, found, err := h.Result(ctx, "q-1")
	require.NoError(t, err)
	assert.False(t, found)

	msg := queue.Message{ID: "q-1", Type: "report", Payload: []byte(`{"query":"DAM today"}`)}
	require.NoError(t, h.HandleMessage(ctx, msg))

	resp, found, err := h.Result(ctx, "q-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "q-1", resp.ID)
	assert.Equal(t, "ok", resp.Body)
}

func TestReportJobHandlerResultWithoutCache(t *testing.T) {
	h := newReportJobHandler("reports", &fakeAnswerer{}, &fakeEvents{}, nil, nil, nil)
	_, found, err := h.Result(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, found)
}
