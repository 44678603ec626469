package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/memohai/leadflow/internal/campaigns"
	"github.com/memohai/leadflow/internal/chat"
	"github.com/memohai/leadflow/internal/instagram"
	"github.com/memohai/leadflow/internal/interactions"
	"github.com/memohai/leadflow/internal/leads"
	"github.com/memohai/leadflow/internal/queue"
	"github.com/memohai/leadflow/internal/tenants"
)

type fakeTenants struct {
	items map[int64]tenants.Tenant
	err   error
}

func (f *fakeTenants) Get(_ context.Context, id int64) (tenants.Tenant, error) {
	if f.err != nil {
		return tenants.Tenant{}, f.err
	}
	t, ok := f.items[id]
	if !ok {
		return tenants.Tenant{}, tenants.ErrNotFound
	}
	return t, nil
}

type fakeLeads struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]*leads.Lead
}

func newFakeLeads() *fakeLeads {
	return &fakeLeads{byKey: map[string]*leads.Lead{}}
}

func (f *fakeLeads) FindOrCreate(_ context.Context, tenantID int64, remote, username string) (leads.Lead, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := queue.Key(tenantID, remote)
	if l, ok := f.byKey[key]; ok {
		l.Username = username
		return *l, false, nil
	}
	f.nextID++
	l := &leads.Lead{ID: f.nextID, TenantID: tenantID, RemoteUserID: remote, Username: username, Status: leads.StatusNew}
	f.byKey[key] = l
	return *l, true, nil
}

func (f *fakeLeads) byID(id int64) *leads.Lead {
	for _, l := range f.byKey {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (f *fakeLeads) SetFullNameIfEmpty(_ context.Context, id int64, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.byID(id)
	if l == nil || l.FullName != "" {
		return false, nil
	}
	l.FullName = name
	return true, nil
}

func (f *fakeLeads) SetPhoneIfEmpty(_ context.Context, id int64, phone string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.byID(id)
	if l == nil || l.PhoneNumber != "" {
		return false, nil
	}
	l.PhoneNumber = phone
	return true, nil
}

func (f *fakeLeads) get(tenantID int64, remote string) leads.Lead {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.byKey[queue.Key(tenantID, remote)]; ok {
		return *l
	}
	return leads.Lead{}
}

type fakeTurns struct {
	mu    sync.Mutex
	turns []interactions.Turn
}

func (f *fakeTurns) AppendTurn(_ context.Context, in interactions.AppendInput) (interactions.Turn, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in.MessageID != "" {
		for _, t := range f.turns {
			if t.TenantID == in.TenantID && t.MessageID == in.MessageID {
				return t, false, nil
			}
		}
	}
	t := interactions.Turn{
		ID:           int64(len(f.turns) + 1),
		TenantID:     in.TenantID,
		RemoteUserID: in.RemoteUserID,
		Username:     in.Username,
		Channel:      in.Channel,
		MessageID:    in.MessageID,
		Message:      in.Message,
		Reply:        in.Reply,
		CreatedAt:    time.Now(),
	}
	f.turns = append(f.turns, t)
	return t, true, nil
}

func (f *fakeTurns) GetByMessageID(_ context.Context, tenantID int64, mid string) (interactions.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.turns {
		if t.TenantID == tenantID && t.MessageID == mid {
			return t, nil
		}
	}
	return interactions.Turn{}, interactions.ErrNotFound
}

func (f *fakeTurns) RecentTurns(_ context.Context, tenantID int64, remote string, limit int) ([]interactions.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interactions.Turn
	for i := len(f.turns) - 1; i >= 0 && len(out) < limit; i-- {
		t := f.turns[i]
		if t.TenantID == tenantID && t.RemoteUserID == remote {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTurns) ListBetween(_ context.Context, tenantID int64, from, to time.Time) ([]interactions.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interactions.Turn
	for _, t := range f.turns {
		if t.TenantID == tenantID && !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTurns) all() []interactions.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interactions.Turn(nil), f.turns...)
}

type fakeCampaigns struct {
	campaigns []campaigns.Campaign
	templates []campaigns.Template
}

func (f *fakeCampaigns) ActiveCampaigns(context.Context, int64) ([]campaigns.Campaign, error) {
	return f.campaigns, nil
}

func (f *fakeCampaigns) EnabledTemplates(context.Context, int64) ([]campaigns.Template, error) {
	return f.templates, nil
}

type fakeProfiles struct {
	username string
	err      error
	tokens   []string
}

func (f *fakeProfiles) Username(_ context.Context, token, _ string) (string, error) {
	f.tokens = append(f.tokens, token)
	return f.username, f.err
}

type fakeProvider struct{}

func (fakeProvider) Chat(context.Context, chat.Request) (chat.Result, error) {
	return chat.Result{}, errors.New("fakeProvider should not be called directly")
}

type fakeFactory struct {
	keys []string
}

func (f *fakeFactory) ForAPIKey(key string) (chat.Provider, error) {
	if key == "" {
		return nil, errors.New("missing api key")
	}
	f.keys = append(f.keys, key)
	return fakeProvider{}, nil
}

type fakeExtractor struct {
	mu         sync.Mutex
	name       string
	phone      string
	nameCalls  int
	phoneCalls int
}

func (f *fakeExtractor) ExtractName(context.Context, chat.Provider, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nameCalls++
	return f.name, nil
}

func (f *fakeExtractor) ExtractPhone(context.Context, chat.Provider, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phoneCalls++
	return f.phone, nil
}

type generateCall struct {
	system  string
	history []chat.Message
	recent  []string
}

type fakeGenerator struct {
	reply chat.Reply
	err   error
	calls []generateCall
}

func (f *fakeGenerator) Generate(_ context.Context, _ chat.Provider, system string, history []chat.Message, recent []string) (chat.Reply, error) {
	f.calls = append(f.calls, generateCall{system: system, history: history, recent: recent})
	return f.reply, f.err
}

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (r *recordingPublisher) Publish(_ context.Context, task queue.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.tasks = append(r.tasks, task)
	return nil
}

type sentMessage struct {
	token     string
	recipient string
	text      string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendText(_ context.Context, token, recipient, text string) (instagram.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return instagram.SendResult{}, f.err
	}
	f.sent = append(f.sent, sentMessage{token: token, recipient: recipient, text: text})
	return instagram.SendResult{RecipientID: recipient, MessageID: "m_out"}, nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}
