package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"EMSpark/internal/domain/models"
	domrepo "EMSpark/internal/domain/repository"
	"EMSpark/pkg/cache"
	pkgkafka "EMSpark/pkg/kafka"
	"EMSpark/pkg/logger"
	"EMSpark/pkg/queue"
)

const (
	jobLockTTL = 2 * time.Minute
	jobDoneTTL = 24 * time.Hour
)

type reportAnswerer interface {
	Answer(ctx context.Context, req models.ReportRequest) (models.ReportResponse, error)
}

// ReportJobHandler answers queued report requests and publishes the
// results. Each job id is answered at most once while its stored result
// lives in the cache.
type ReportJobHandler struct {
	topic    string
	reports  reportAnswerer
	results  domrepo.EventPublisher
	locks    cache.Service
	validate *validator.Validate
	metrics  domrepo.Metrics
	l        *logger.Logger
}

// NewReportJobHandler builds the handler. locks and metrics may be nil.
func NewReportJobHandler(topic string, reports *MarketReport, results domrepo.EventPublisher, locks cache.Service, metrics domrepo.Metrics, l *logger.Logger) *ReportJobHandler {
	return newReportJobHandler(topic, reports, results, locks, metrics, l)
}

func newReportJobHandler(topic string, reports reportAnswerer, results domrepo.EventPublisher, locks cache.Service, metrics domrepo.Metrics, l *logger.Logger) *ReportJobHandler {
	if l == nil {
		l = logger.NewNop()
	}
	return &ReportJobHandler{
		topic:    topic,
		reports:  reports,
		results:  results,
		locks:    locks,
		validate: validator.New(),
		metrics:  metrics,
		l:        l,
	}
}

func (h *ReportJobHandler) Topic() string { return h.topic }

// HandleMessage adapts Handle to the Redis work queue.
func (h *ReportJobHandler) HandleMessage(ctx context.Context, msg queue.Message) error {
	return h.Handle(pkgkafka.WithRequestID(ctx, msg.ID), msg.Payload)
}

// Result returns the stored response of a finished job.
func (h *ReportJobHandler) Result(ctx context.Context, id string) (models.ReportResponse, bool, error) {
	var resp models.ReportResponse
	if h.locks == nil {
		return resp, false, nil
	}
	err := h.locks.Get(ctx, doneKey(id), &resp)
	switch {
	case err == nil:
		return resp, true, nil
	case errors.Is(err, cache.ErrCacheMiss):
		return resp, false, nil
	default:
		return resp, false, fmt.Errorf("job result %s: %w", id, err)
	}
}

// Handle returns kafka.Permanent for payloads that can never succeed.
func (h *ReportJobHandler) Handle(ctx context.Context, b []byte) error {
	var req models.ReportRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.recordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode report request: %w", err))
	}
	if err := defaults.Set(&req); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("report request defaults: %w", err))
	}
	if err := h.validate.Struct(req); err != nil {
		h.recordError("consumer_invalid")
		return pkgkafka.Permanent(fmt.Errorf("invalid report request: %w", err))
	}
	if req.ID == "" {
		req.ID = pkgkafka.RequestID(ctx)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	acquired, err := h.acquire(ctx, req.ID)
	if err != nil {
		return err
	}
	if !acquired {
		h.l.Debug("Report job already handled", logger.String("id", req.ID))
		return nil
	}

	resp, err := h.reports.Answer(ctx, req)
	if err != nil && !errors.Is(err, ErrUnresolvedQuery) && !errors.Is(err, ErrSpanTooLarge) {
		h.release(ctx, req.ID)
		return fmt.Errorf("answer %s: %w", req.ID, err)
	}
	if err := h.results.PublishReport(ctx, resp); err != nil {
		h.release(ctx, req.ID)
		h.recordError("publish")
		return fmt.Errorf("publish report %s: %w", req.ID, err)
	}
	if h.metrics != nil {
		h.metrics.RecordMessageSent("report-results")
	}
	h.markDone(ctx, req.ID, resp)
	return nil
}

func doneKey(id string) string { return "report-job:done:" + id }
func lockKey(id string) string { return "report-job:lock:" + id }

// acquire reports false when the job is finished or held by another worker.
func (h *ReportJobHandler) acquire(ctx context.Context, id string) (bool, error) {
	if h.locks == nil {
		return true, nil
	}
	var done []byte
	err := h.locks.Get(ctx, doneKey(id), &done)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		h.l.Warn("Job marker lookup failed", logger.String("id", id), logger.Error(err))
	}
	ok, err := h.locks.TryLock(ctx, lockKey(id), jobLockTTL)
	if err != nil {
		return false, fmt.Errorf("lock job %s: %w", id, err)
	}
	return ok, nil
}

func (h *ReportJobHandler) release(ctx context.Context, id string) {
	if h.locks == nil {
		return
	}
	if err := h.locks.Unlock(ctx, lockKey(id)); err != nil {
		h.l.Warn("Job unlock failed", logger.String("id", id), logger.Error(err))
	}
}

func (h *ReportJobHandler) markDone(ctx context.Context, id string, resp models.ReportResponse) {
	if h.locks == nil {
		return
	}
	if err := h.locks.Set(ctx, doneKey(id), resp, jobDoneTTL); err != nil {
		h.l.Warn("Job result not stored", logger.String("id", id), logger.Error(err))
	}
	h.release(ctx, id)
}

func (h *ReportJobHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}
