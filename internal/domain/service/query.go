package service

import (
	"context"

	"EMSpark/internal/domain/models"
	"EMSpark/internal/services/query"
)

// QueryResolver turns one question into query specs.
type QueryResolver interface {
	Resolve(ctx context.Context, text string) ([]models.QuerySpec, query.Source)
}

// ReportRenderer turns a built report into a response body.
type ReportRenderer interface {
	Render(report *models.Report, format string) (string, error)
}
