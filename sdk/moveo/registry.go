package moveo

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Registry hands out one Client per token. Clients are created lazily on the
// first GetInstance and share the registry's Config.
type Registry struct {
	cfg Config

	mu        sync.Mutex
	instances map[string]*Client
}

// NewRegistry validates cfg and returns an empty registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Registry{
		cfg:       cfg.withDefaults(),
		instances: make(map[string]*Client),
	}, nil
}

// GetInstance returns the client for token, creating it on first use.
func (r *Registry) GetInstance(token string) (*Client, error) {
	if !isValidString(token) {
		return nil, ErrInvalidToken
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.instances[token]; ok {
		return c, nil
	}

	c, err := New(token, r.cfg)
	if err != nil {
		return nil, err
	}
	r.instances[token] = c
	return c, nil
}

// FetchInstance returns the existing client for token without creating one.
func (r *Registry) FetchInstance(token string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.instances[token]
	if !ok {
		return nil, ErrInstanceNotCreated
	}
	return c, nil
}

// Close closes every client and empties the registry.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	instances := r.instances
	r.instances = make(map[string]*Client)
	r.mu.Unlock()

	var errs []error
	for _, c := range instances {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close client: %w", err))
		}
	}
	return errors.Join(errs...)
}
