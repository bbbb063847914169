package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"TokenPulse/internal/domain/models"
)

// ErrUnknownToken is returned for tokens no session was configured for.
var ErrUnknownToken = errors.New("token is not monitored")

// Registry owns one MonitorSession per configured token.
type Registry struct {
	sessions map[string]*MonitorSession
	order    []string
}

func NewRegistry(sessions ...*MonitorSession) *Registry {
	r := &Registry{sessions: make(map[string]*MonitorSession, len(sessions))}
	for _, s := range sessions {
		if s == nil {
			continue
		}
		if _, dup := r.sessions[s.TokenID()]; dup {
			continue
		}
		r.sessions[s.TokenID()] = s
		r.order = append(r.order, s.TokenID())
	}
	sort.Strings(r.order)
	return r
}

func (r *Registry) Get(tokenID string) (*MonitorSession, error) {
	s, ok := r.sessions[tokenID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, tokenID)
	}
	return s, nil
}

// Tokens lists monitored token ids in lexical order.
func (r *Registry) Tokens() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Statuses() []models.SessionStatus {
	out := make([]models.SessionStatus, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id].Status())
	}
	return out
}

func (r *Registry) StartAll(ctx context.Context) error {
	var errs []error
	for _, id := range r.order {
		if err := r.sessions[id].Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("start %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) StopAll(ctx context.Context) error {
	var errs []error
	for _, id := range r.order {
		if err := r.sessions[id].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
