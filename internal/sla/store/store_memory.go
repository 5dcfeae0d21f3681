package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"remedia/internal/sla"
	id "remedia/pkg/domain"
	"remedia/pkg/platform/sentinel"
)

// MemoryStore keeps SLA rules in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[id.RuleID]sla.Rule
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[id.RuleID]sla.Rule)}
}

func (s *MemoryStore) ListActive(_ context.Context) ([]sla.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []sla.Rule
	for _, rule := range s.rules {
		if rule.IsActive {
			out = append(out, rule)
		}
	}
	sortRules(out)
	return out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]sla.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]sla.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, rule)
	}
	sortRules(out)
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, rule sla.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return sentinel.ErrConflict
	}
	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule
	return nil
}

func (s *MemoryStore) Deactivate(_ context.Context, ruleID id.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[ruleID]
	if !ok {
		return sentinel.ErrNotFound
	}
	rule.IsActive = false
	rule.UpdatedAt = time.Now()
	s.rules[ruleID] = rule
	return nil
}

// sortRules keeps listings stable: priority descending, then creation order.
func sortRules(rules []sla.Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}
