package chat

import (
	"strings"
	"sync"
	"time"
)

// OpenAIFactory hands out one provider per tenant API key. Credentials are
// never shared between tenants.
type OpenAIFactory struct {
	baseURL   string
	timeout   time.Duration
	mu        sync.RWMutex
	providers map[string]*OpenAIProvider // keyed by api key
}

func NewOpenAIFactory(baseURL string, timeout time.Duration) *OpenAIFactory {
	return &OpenAIFactory{
		baseURL:   baseURL,
		timeout:   timeout,
		providers: map[string]*OpenAIProvider{},
	}
}

// ForAPIKey returns the cached provider for apiKey, creating it on first use.
func (f *OpenAIFactory) ForAPIKey(apiKey string) (Provider, error) {
	apiKey = strings.TrimSpace(apiKey)
	f.mu.RLock()
	provider, ok := f.providers[apiKey]
	f.mu.RUnlock()
	if ok {
		return provider, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if provider, ok := f.providers[apiKey]; ok {
		return provider, nil
	}
	provider, err := NewOpenAIProvider(apiKey, f.baseURL, f.timeout)
	if err != nil {
		return nil, err
	}
	f.providers[apiKey] = provider
	return provider, nil
}
