package interactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	dbpkg "github.com/memohai/leadflow/internal/db"
	"github.com/memohai/leadflow/internal/db/sqlc"
)

// Queries is the subset of generated queries used by the interaction log.
type Queries interface {
	CreateTurn(ctx context.Context, arg sqlc.CreateTurnParams) (sqlc.InteractionTurn, error)
	GetTurnByMessageID(ctx context.Context, arg sqlc.GetTurnByMessageIDParams) (sqlc.InteractionTurn, error)
	ListRecentTurns(ctx context.Context, arg sqlc.ListRecentTurnsParams) ([]sqlc.InteractionTurn, error)
	ListTurnsBetween(ctx context.Context, arg sqlc.ListTurnsBetweenParams) ([]sqlc.InteractionTurn, error)
}

// Service is the append-only interaction log.
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
		logger:  log.With(slog.String("service", "interactions")),
	}
}

// AppendTurn records a turn. When a turn with the same message id already
// exists for the tenant, the stored turn is returned and created is false.
func (s *Service) AppendTurn(ctx context.Context, input AppendInput) (Turn, bool, error) {
	if input.TenantID <= 0 || strings.TrimSpace(input.RemoteUserID) == "" {
		return Turn{}, false, fmt.Errorf("tenant id and remote user id are required")
	}
	channel := input.Channel
	if channel == "" {
		channel = ChannelDirect
	}
	row, err := s.queries.CreateTurn(ctx, sqlc.CreateTurnParams{
		TenantID:     input.TenantID,
		RemoteUserID: strings.TrimSpace(input.RemoteUserID),
		Username:     input.Username,
		Channel:      string(channel),
		MessageID:    dbpkg.Text(input.MessageID),
		Message:      input.Message,
		Reply:        input.Reply,
	})
	if err == nil {
		return toTurn(row), true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || strings.TrimSpace(input.MessageID) == "" {
		return Turn{}, false, fmt.Errorf("create turn: %w", err)
	}
	existing, err := s.GetByMessageID(ctx, input.TenantID, input.MessageID)
	if err != nil {
		return Turn{}, false, err
	}
	s.logger.Info("turn already recorded",
		slog.Int64("tenant_id", input.TenantID),
		slog.String("message_id", input.MessageID),
		slog.Int64("turn_id", existing.ID))
	return existing, false, nil
}

// GetByMessageID returns the turn recorded for a platform message id.
func (s *Service) GetByMessageID(ctx context.Context, tenantID int64, messageID string) (Turn, error) {
	value := dbpkg.Text(messageID)
	if !value.Valid {
		return Turn{}, ErrNotFound
	}
	row, err := s.queries.GetTurnByMessageID(ctx, sqlc.GetTurnByMessageIDParams{TenantID: tenantID, MessageID: value})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Turn{}, ErrNotFound
		}
		return Turn{}, fmt.Errorf("get turn by message id: %w", err)
	}
	return toTurn(row), nil
}

// RecentTurns returns up to limit turns for a lead, newest first.
func (s *Service) RecentTurns(ctx context.Context, tenantID int64, remoteUserID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return []Turn{}, nil
	}
	rows, err := s.queries.ListRecentTurns(ctx, sqlc.ListRecentTurnsParams{
		TenantID:     tenantID,
		RemoteUserID: strings.TrimSpace(remoteUserID),
		Limit:        int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list recent turns: %w", err)
	}
	return toTurns(rows), nil
}

// ListBetween returns a tenant's turns created in [from, to), oldest first.
func (s *Service) ListBetween(ctx context.Context, tenantID int64, from, to time.Time) ([]Turn, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("invalid time range")
	}
	rows, err := s.queries.ListTurnsBetween(ctx, sqlc.ListTurnsBetweenParams{
		TenantID:    tenantID,
		CreatedAt:   dbpkg.Timestamptz(from),
		CreatedAt_2: dbpkg.Timestamptz(to),
	})
	if err != nil {
		return nil, fmt.Errorf("list turns between: %w", err)
	}
	return toTurns(rows), nil
}

func toTurns(rows []sqlc.InteractionTurn) []Turn {
	turns := make([]Turn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, toTurn(row))
	}
	return turns
}

func toTurn(row sqlc.InteractionTurn) Turn {
	return Turn{
		ID:           row.ID,
		TenantID:     row.TenantID,
		RemoteUserID: row.RemoteUserID,
		Username:     row.Username,
		Channel:      Channel(row.Channel),
		MessageID:    dbpkg.TextValue(row.MessageID),
		Message:      row.Message,
		Reply:        row.Reply,
		CreatedAt:    dbpkg.TimeValue(row.CreatedAt),
	}
}
