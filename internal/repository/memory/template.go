package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/service/template"
)

// TemplateRepo implements template.Repository in memory.
type TemplateRepo struct{ s *Store }

func copyTemplate(t *domain.Template) domain.Template {
	cp := *t
	cp.Variables = append([]string{}, t.Variables...)
	if t.ParentID != nil {
		p := *t.ParentID
		cp.ParentID = &p
	}
	return cp
}

func (r *TemplateRepo) Get(_ context.Context, id string) (*domain.Template, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.templates[id]
	if !ok {
		return nil, template.ErrNotFound
	}
	cp := copyTemplate(t)
	return &cp, nil
}

func (r *TemplateRepo) List(_ context.Context, f template.ListFilter) ([]domain.Template, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]domain.Template, 0, len(r.s.templates))
	for _, t := range r.s.templates {
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Name), search) {
			continue
		}
		out = append(out, copyTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *TemplateRepo) Create(_ context.Context, t *domain.Template) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := copyTemplate(t)
	r.s.templates[cp.ID] = &cp
	return nil
}

func (r *TemplateRepo) Update(_ context.Context, t *domain.Template) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.templates[t.ID]; !ok {
		return template.ErrNotFound
	}
	cp := copyTemplate(t)
	r.s.templates[cp.ID] = &cp
	return nil
}

func (r *TemplateRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.templates[id]; !ok {
		return template.ErrNotFound
	}
	delete(r.s.templates, id)
	return nil
}

func (r *TemplateRepo) MarkUsed(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.templates[id]
	if !ok {
		return template.ErrNotFound
	}
	t.Locked = true
	t.UsageCount++
	return nil
}

func (r *TemplateRepo) Categories(_ context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, t := range r.s.templates {
		if t.Category != "" && !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}
