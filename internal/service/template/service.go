package template

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/phishsim/internal/domain"
)

// Service implements the template store. All public methods are safe for
// concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo     Repository
	refs     CampaignRefs
	renderer *Renderer
	now      func() time.Time
}

// NewService creates a template store backed by the given repository.
// refs tells the store whether a template has already been sent.
func NewService(repo Repository, refs CampaignRefs) *Service {
	return &Service{repo: repo, refs: refs, renderer: NewRenderer(), now: time.Now}
}

// CreateInput holds the fields for creating a template.
type CreateInput struct {
	Name      string   `json:"name"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Variables []string `json:"variables"`
	Category  string   `json:"category"`
}

// Get returns a single template.
func (s *Service) Get(ctx context.Context, id string) (*domain.Template, error) {
	return s.repo.Get(ctx, id)
}

// List returns templates matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Template, error) {
	return s.repo.List(ctx, f)
}

// Categories returns the distinct template categories.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.repo.Categories(ctx)
}

// Create validates placeholders against the declared variables and stores
// a new version-1 template.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Template, error) {
	t := &domain.Template{
		Name:      strings.TrimSpace(in.Name),
		Subject:   in.Subject,
		Body:      in.Body,
		Variables: normalizeVariables(in.Variables),
		Category:  strings.TrimSpace(in.Category),
	}
	if err := s.validate(t); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t.ID = uuid.New().String()
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Update applies the non-nil fields. A template that a non-draft campaign
// references, or that was locked at launch, is never mutated: the edit is
// saved as a new version and that version is returned.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) (*domain.Template, error) {
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *cur
	next.Variables = append([]string(nil), cur.Variables...)
	if u.Name != nil {
		next.Name = strings.TrimSpace(*u.Name)
	}
	if u.Subject != nil {
		next.Subject = *u.Subject
	}
	if u.Body != nil {
		next.Body = *u.Body
	}
	if u.Variables != nil {
		next.Variables = normalizeVariables(*u.Variables)
	}
	if u.Category != nil {
		next.Category = strings.TrimSpace(*u.Category)
	}
	if err := s.validate(&next); err != nil {
		return nil, err
	}

	frozen, err := s.isFrozen(ctx, cur)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if !frozen {
		next.UpdatedAt = now
		if err := s.repo.Update(ctx, &next); err != nil {
			return nil, err
		}
		return &next, nil
	}

	parent := cur.ID
	next.ID = uuid.New().String()
	next.Version = cur.Version + 1
	next.ParentID = &parent
	next.Locked = false
	next.UsageCount = 0
	next.CreatedAt = now
	next.UpdatedAt = now
	if err := s.repo.Create(ctx, &next); err != nil {
		return nil, err
	}
	log.Printf("[template.Service] template %s is in use; saved edit as version %d (%s)", cur.ID, next.Version, next.ID)
	return &next, nil
}

// Delete removes a template that no campaign references.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	total, _, err := s.refs.CountByTemplate(ctx, id)
	if err != nil {
		return fmt.Errorf("count template references: %w", err)
	}
	if total > 0 {
		return ErrTemplateInUse
	}
	return s.repo.Delete(ctx, id)
}

// Duplicate copies a template into a new, unlocked version-1 template.
func (s *Service) Duplicate(ctx context.Context, id string) (*domain.Template, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, CreateInput{
		Name:      src.Name + " (copy)",
		Subject:   src.Subject,
		Body:      src.Body,
		Variables: src.Variables,
		Category:  src.Category,
	})
}

// MarkLaunched records that a campaign went out with this template.
func (s *Service) MarkLaunched(ctx context.Context, id string) error {
	return s.repo.MarkUsed(ctx, id)
}

// CheckDeliverable fails with ErrUnsuppliedVariable when the template uses a
// placeholder that campaign delivery cannot fill per recipient.
func (s *Service) CheckDeliverable(ctx context.Context, id string) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	missing, err := Unsupplied(t)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrUnsuppliedVariable, strings.Join(missing, ", "))
	}
	return nil
}

// Render personalizes a stored template with vars.
func (s *Service) Render(ctx context.Context, id string, vars map[string]string) (*Rendered, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.renderer.Render(t, vars)
}

// Renderer exposes the shared renderer so delivery reuses its parse cache.
func (s *Service) Renderer() *Renderer { return s.renderer }

func (s *Service) isFrozen(ctx context.Context, t *domain.Template) (bool, error) {
	if t.Locked {
		return true, nil
	}
	_, nonDraft, err := s.refs.CountByTemplate(ctx, t.ID)
	if err != nil {
		return false, fmt.Errorf("count template references: %w", err)
	}
	return nonDraft > 0, nil
}

func (s *Service) validate(t *domain.Template) error {
	if t.Name == "" || strings.TrimSpace(t.Subject) == "" || strings.TrimSpace(t.Body) == "" {
		return ErrMissingField
	}
	if err := ValidateVariables(t.Subject, t.Body, t.Variables); err != nil {
		return err
	}
	if err := s.renderer.Check(t.Subject); err != nil {
		return err
	}
	return s.renderer.Check(t.Body)
}
