package eventconfig

import (
	"context"
	"fmt"
	"sort"

	"crvs/internal/events/scope"
	"crvs/pkg/platform/sentinel"
)

// Source provides event configurations. Get returns sentinel.ErrNotFound for
// unknown types.
type Source interface {
	Get(ctx context.Context, eventType string) (*EventConfig, error)
	List(ctx context.Context) ([]*EventConfig, error)
}

// Set is an immutable, validated collection keyed by slug.
type Set struct {
	byID  map[string]*EventConfig
	order []string
}

// NewSet validates cfgs and indexes them. Ids must be unique after slug
// normalisation.
func NewSet(cfgs []EventConfig) (*Set, error) {
	s := &Set{byID: make(map[string]*EventConfig, len(cfgs))}
	for i := range cfgs {
		cfg := cfgs[i]
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		key := scope.Slug(cfg.ID)
		if _, dup := s.byID[key]; dup {
			return nil, fmt.Errorf("duplicate event config %s", cfg.ID)
		}
		s.byID[key] = &cfg
		s.order = append(s.order, key)
	}
	sort.Strings(s.order)
	return s, nil
}

func (s *Set) Get(_ context.Context, eventType string) (*EventConfig, error) {
	cfg, ok := s.byID[scope.Slug(eventType)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cfg, nil
}

func (s *Set) List(_ context.Context) ([]*EventConfig, error) {
	out := make([]*EventConfig, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byID[key])
	}
	return out, nil
}

func (s *Set) Len() int {
	return len(s.order)
}

// Static is an in-memory Source. It panics on invalid input and is meant for
// tests and fixtures.
func Static(cfgs ...EventConfig) *Set {
	s, err := NewSet(cfgs)
	if err != nil {
		panic(err)
	}
	return s
}
