package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/memohai/leadflow/internal/campaigns"
	"github.com/memohai/leadflow/internal/chat"
	"github.com/memohai/leadflow/internal/conversation"
	"github.com/memohai/leadflow/internal/instagram"
	"github.com/memohai/leadflow/internal/interactions"
	"github.com/memohai/leadflow/internal/leads"
	"github.com/memohai/leadflow/internal/metrics"
	"github.com/memohai/leadflow/internal/prune"
	"github.com/memohai/leadflow/internal/queue"
	"github.com/memohai/leadflow/internal/tenants"
)

// maxPromptMessageRunes caps how much of one inbound message reaches the model.
const maxPromptMessageRunes = 4000

// ProcessorDeps are the collaborators of a Processor.
type ProcessorDeps struct {
	Tenants   TenantStore
	Leads     LeadStore
	Turns     TurnStore
	Campaigns CampaignStore
	Profiles  ProfileClient
	Providers chat.ProviderFactory
	Extractor AttributeExtractor
	Generator ReplyGenerator
	Publisher taskPublisher
}

// Processor runs process_dm tasks: it resolves the lead, captures missing
// attributes, generates a reply, records the turn and enqueues delivery.
// Callers must serialize tasks per conversation key.
type Processor struct {
	deps     ProcessorDeps
	logger   *slog.Logger
	validate *validator.Validate
}

func NewProcessor(log *slog.Logger, deps ProcessorDeps) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		deps:     deps,
		logger:   log.With(slog.String("component", "processor")),
		validate: validator.New(),
	}
}

func (p *Processor) Handle(ctx context.Context, task queue.Task) error {
	var in instagram.ProcessDM
	if err := task.Decode(&in); err != nil {
		return err
	}
	if err := p.validate.Struct(in); err != nil {
		return queue.Permanent(fmt.Errorf("invalid process_dm payload: %w", err))
	}
	log := p.logger.With(
		slog.String("task_id", task.ID),
		slog.Int64("tenant_id", in.TenantID),
		slog.String("sender_id", in.SenderID),
		slog.Int("attempt", task.Attempt),
	)

	// a turn for this message means an earlier attempt got past generation
	if in.MessageID != "" {
		turn, err := p.deps.Turns.GetByMessageID(ctx, in.TenantID, in.MessageID)
		switch {
		case err == nil:
			log.Info("message already processed, re-enqueueing dispatch", slog.Int64("turn_id", turn.ID))
			return p.enqueueDispatch(ctx, in, turn)
		case !errors.Is(err, interactions.ErrNotFound):
			return err
		}
	}

	tenant, err := p.deps.Tenants.Get(ctx, in.TenantID)
	if errors.Is(err, tenants.ErrNotFound) {
		return queue.Permanent(err)
	}
	if err != nil {
		return err
	}
	if !tenant.Active {
		return queue.Permanent(errTenantInactive)
	}
	provider, err := p.deps.Providers.ForAPIKey(tenant.ModelAPIKey)
	if err != nil {
		return queue.Permanent(fmt.Errorf("model provider: %w", err))
	}

	username, err := p.deps.Profiles.Username(ctx, tenant.AccessToken, in.SenderID)
	if err != nil {
		if instagram.IsPermanent(err) {
			return queue.Permanent(err)
		}
		return err
	}

	lead, created, err := p.deps.Leads.FindOrCreate(ctx, tenant.ID, in.SenderID, username)
	if err != nil {
		return err
	}
	if created {
		log.Info("lead created", slog.Int64("lead_id", lead.ID), slog.String("username", username))
	}

	text := prune.Edges(in.Text, maxPromptMessageRunes)
	nameKnown, phoneKnown, err := p.captureAttributes(ctx, log, provider, lead, text)
	if err != nil {
		return err
	}

	recent, err := p.deps.Turns.RecentTurns(ctx, tenant.ID, in.SenderID, conversation.MaxTurns)
	if err != nil {
		return err
	}
	history := make([]conversation.Turn, 0, len(recent))
	for _, t := range recent {
		history = append(history, conversation.Turn{Message: t.Message, Reply: t.Reply})
	}

	params, err := p.promptParams(ctx, tenant.ID)
	if err != nil {
		return err
	}
	params.Message = text
	params.NameKnown = nameKnown
	params.PhoneKnown = phoneKnown
	prompt := chat.SystemPrompt(params)

	reply, err := p.deps.Generator.Generate(ctx, provider, prompt.System,
		conversation.Build(history, text),
		conversation.RecentReplies(history, chat.RepetitionWindow),
	)
	if err != nil {
		return err
	}
	replyText := prune.Runes(strings.TrimSpace(reply.Text), instagram.MaxTextRunes)
	if replyText == "" {
		return errors.New("model returned an empty reply")
	}

	turn, _, err := p.deps.Turns.AppendTurn(ctx, interactions.AppendInput{
		TenantID:     tenant.ID,
		RemoteUserID: in.SenderID,
		Username:     username,
		Channel:      interactions.ChannelDirect,
		MessageID:    in.MessageID,
		Message:      in.Text,
		Reply:        replyText,
	})
	if err != nil {
		return err
	}
	log.Info("reply generated",
		slog.Int64("turn_id", turn.ID),
		slog.String("language", string(prompt.Language)),
		slog.Bool("regenerated", reply.Regenerated),
		slog.Bool("truncated", replyText != strings.TrimSpace(reply.Text)),
		slog.Int("history_turns", len(history)),
	)
	return p.enqueueDispatch(ctx, in, turn)
}

// captureAttributes extracts whichever of name and phone the lead lacks and
// stores them write-once. It reports whether each is known after this turn.
func (p *Processor) captureAttributes(ctx context.Context, log *slog.Logger, provider chat.Provider, lead leads.Lead, text string) (bool, bool, error) {
	nameKnown := lead.HasFullName()
	phoneKnown := lead.HasPhoneNumber()
	if nameKnown && phoneKnown {
		return true, true, nil
	}

	var name, phone string
	g, gctx := errgroup.WithContext(ctx)
	if !nameKnown {
		g.Go(func() error {
			v, err := p.deps.Extractor.ExtractName(gctx, provider, text)
			name = v
			return err
		})
	}
	if !phoneKnown {
		g.Go(func() error {
			v, err := p.deps.Extractor.ExtractPhone(gctx, provider, text)
			phone = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, false, err
	}

	if captured(name) {
		ok, err := p.deps.Leads.SetFullNameIfEmpty(ctx, lead.ID, name)
		if err != nil {
			return false, false, err
		}
		if ok {
			metrics.AttributesCaptured.WithLabelValues("full_name").Inc()
			log.Info("lead name captured", slog.Int64("lead_id", lead.ID))
		}
		nameKnown = true
	}
	if captured(phone) {
		ok, err := p.deps.Leads.SetPhoneIfEmpty(ctx, lead.ID, phone)
		if err != nil {
			return false, false, err
		}
		if ok {
			metrics.AttributesCaptured.WithLabelValues("phone_number").Inc()
			log.Info("lead phone captured", slog.Int64("lead_id", lead.ID))
		}
		phoneKnown = true
	}
	return nameKnown, phoneKnown, nil
}

func captured(v string) bool {
	return v != "" && v != chat.NotFoundSentinel
}

func (p *Processor) promptParams(ctx context.Context, tenantID int64) (chat.PromptParams, error) {
	var (
		active    []campaigns.Campaign
		templates []campaigns.Template
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		active, err = p.deps.Campaigns.ActiveCampaigns(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		templates, err = p.deps.Campaigns.EnabledTemplates(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return chat.PromptParams{}, err
	}

	params := chat.PromptParams{
		Campaigns: make([]chat.PromptSection, 0, len(active)),
		Templates: make([]chat.PromptSection, 0, len(templates)),
	}
	for _, c := range active {
		params.Campaigns = append(params.Campaigns, chat.PromptSection{Title: c.Title, Body: c.Content})
	}
	for _, t := range templates {
		params.Templates = append(params.Templates, chat.PromptSection{Title: t.Name, Body: t.Text})
	}
	return params, nil
}

func (p *Processor) enqueueDispatch(ctx context.Context, in instagram.ProcessDM, turn interactions.Turn) error {
	task, err := queue.NewTask(queue.KindSendReply, queue.Key(in.TenantID, in.SenderID), SendReply{
		TenantID:    in.TenantID,
		RecipientID: in.SenderID,
		Text:        turn.Reply,
		MessageID:   in.MessageID,
		TurnID:      turn.ID,
	})
	if err != nil {
		return queue.Permanent(err)
	}
	if err := p.deps.Publisher.Publish(ctx, task); err != nil {
		return fmt.Errorf("enqueue dispatch: %w", err)
	}
	return nil
}
