package campaigns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/memohai/leadflow/internal/db/sqlc"
)

// Campaign is an active marketing campaign whose content grounds replies.
type Campaign struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Template is a tenant behavior template routed to the language model.
type Template struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Queries is the subset of generated queries used for prompt inputs.
type Queries interface {
	ListActiveCampaigns(ctx context.Context, tenantID int64) ([]sqlc.Campaign, error)
	ListEnabledTemplates(ctx context.Context, tenantID int64) ([]sqlc.BehaviorTemplate, error)
}

// Service reads tenant-scoped campaign content and behavior templates.
type Service struct {
	queries Queries
	logger  *slog.Logger
}

func NewService(log *slog.Logger, queries Queries) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		queries: queries,
		logger:  log.With(slog.String("service", "campaigns")),
	}
}

// ActiveCampaigns lists the tenant's active campaigns in creation order.
func (s *Service) ActiveCampaigns(ctx context.Context, tenantID int64) ([]Campaign, error) {
	rows, err := s.queries.ListActiveCampaigns(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	items := make([]Campaign, 0, len(rows))
	for _, row := range rows {
		if !row.IsActive {
			continue
		}
		items = append(items, Campaign{ID: row.ID, Title: row.Title, Content: row.Content})
	}
	return items, nil
}

// EnabledTemplates lists templates flagged for the language model.
func (s *Service) EnabledTemplates(ctx context.Context, tenantID int64) ([]Template, error) {
	rows, err := s.queries.ListEnabledTemplates(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list enabled templates: %w", err)
	}
	items := make([]Template, 0, len(rows))
	for _, row := range rows {
		if !row.UseLlm {
			continue
		}
		items = append(items, Template{ID: row.ID, Name: row.Name, Text: row.Text})
	}
	return items, nil
}
