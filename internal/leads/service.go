package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	dbpkg "github.com/memohai/leadflow/internal/db"
	"github.com/memohai/leadflow/internal/db/sqlc"
)

// Queries is the subset of generated queries used by the lead service.
type Queries interface {
	UpsertLead(ctx context.Context, arg sqlc.UpsertLeadParams) (sqlc.UpsertLeadRow, error)
	GetLead(ctx context.Context, arg sqlc.GetLeadParams) (sqlc.Lead, error)
	SetLeadFullNameIfEmpty(ctx context.Context, arg sqlc.SetLeadFullNameIfEmptyParams) (int64, error)
	SetLeadPhoneIfEmpty(ctx context.Context, arg sqlc.SetLeadPhoneIfEmptyParams) (int64, error)
}

// Service owns lead resolution and write-once attribute capture.
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
		logger:  log.With(slog.String("service", "leads")),
	}
}

// FindOrCreate returns the lead for (tenantID, remoteUserID), creating it with
// status NEW when absent. The stored username is refreshed on every call.
func (s *Service) FindOrCreate(ctx context.Context, tenantID int64, remoteUserID, username string) (Lead, bool, error) {
	remoteUserID = strings.TrimSpace(remoteUserID)
	if tenantID <= 0 || remoteUserID == "" {
		return Lead{}, false, fmt.Errorf("tenant id and remote user id are required")
	}
	row, err := s.queries.UpsertLead(ctx, sqlc.UpsertLeadParams{
		TenantID:     tenantID,
		RemoteUserID: remoteUserID,
		Username:     strings.TrimSpace(username),
		Status:       StatusNew,
	})
	if err != nil {
		return Lead{}, false, fmt.Errorf("upsert lead: %w", err)
	}
	lead := toLeadFromUpsert(row)
	if row.Inserted {
		s.logger.Info("lead created",
			slog.Int64("tenant_id", tenantID),
			slog.Int64("lead_id", lead.ID),
			slog.String("username", lead.Username))
	}
	return lead, row.Inserted, nil
}

// Get returns an existing lead.
func (s *Service) Get(ctx context.Context, tenantID int64, remoteUserID string) (Lead, error) {
	row, err := s.queries.GetLead(ctx, sqlc.GetLeadParams{TenantID: tenantID, RemoteUserID: strings.TrimSpace(remoteUserID)})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return toLead(row), nil
}

// SetFullNameIfEmpty stores name only when the lead has none yet. It reports
// whether the value was applied.
func (s *Service) SetFullNameIfEmpty(ctx context.Context, leadID int64, name string) (bool, error) {
	value := dbpkg.Text(name)
	if !value.Valid {
		return false, nil
	}
	affected, err := s.queries.SetLeadFullNameIfEmpty(ctx, sqlc.SetLeadFullNameIfEmptyParams{ID: leadID, FullName: value})
	if err != nil {
		return false, fmt.Errorf("set lead full name: %w", err)
	}
	return affected > 0, nil
}

// SetPhoneIfEmpty stores phone only when the lead has none yet. It reports
// whether the value was applied.
func (s *Service) SetPhoneIfEmpty(ctx context.Context, leadID int64, phone string) (bool, error) {
	value := dbpkg.Text(phone)
	if !value.Valid {
		return false, nil
	}
	affected, err := s.queries.SetLeadPhoneIfEmpty(ctx, sqlc.SetLeadPhoneIfEmptyParams{ID: leadID, PhoneNumber: value})
	if err != nil {
		return false, fmt.Errorf("set lead phone: %w", err)
	}
	return affected > 0, nil
}

func toLead(row sqlc.Lead) Lead {
	return Lead{
		ID:           row.ID,
		TenantID:     row.TenantID,
		RemoteUserID: row.RemoteUserID,
		Username:     row.Username,
		FullName:     dbpkg.TextValue(row.FullName),
		PhoneNumber:  dbpkg.TextValue(row.PhoneNumber),
		Status:       row.Status,
		WhenCall:     dbpkg.TextValue(row.WhenCall),
		Interest:     dbpkg.TextValue(row.Interest),
		Message:      dbpkg.TextValue(row.Message),
		CreatedAt:    dbpkg.TimeValue(row.CreatedAt),
		UpdatedAt:    dbpkg.TimeValue(row.UpdatedAt),
	}
}

func toLeadFromUpsert(row sqlc.UpsertLeadRow) Lead {
	return toLead(sqlc.Lead{
		ID:           row.ID,
		TenantID:     row.TenantID,
		RemoteUserID: row.RemoteUserID,
		Username:     row.Username,
		FullName:     row.FullName,
		PhoneNumber:  row.PhoneNumber,
		Status:       row.Status,
		WhenCall:     row.WhenCall,
		Interest:     row.Interest,
		Message:      row.Message,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	})
}
