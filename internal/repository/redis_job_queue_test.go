package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EMSpark/internal/domain/models"
)

type fakeWorkQueue struct {
	msgType, id string
	payload     any
}

func (f *fakeWorkQueue) Enqueue(_ context.Context, msgType, id string, payload any) error {
	f.msgType, f.id, f.payload = msgType, id, payload
	return nil
}

func TestRedisJobQueueEnqueue(t *testing.T) {
	fq := &fakeWorkQueue{}
	q := NewRedisJobQueue(fq)

	req := models.ReportRequest{ID: "job-9", Query: "RTM today", Format: "markdown"}
	require.NoError(t, q.Enqueue(context.Background(), req))
	assert.Equal(t, ReportJobType, fq.msgType)
	assert.Equal(t, "job-9", fq.id)
	assert.Equal(t, req, fq.payload)
}
