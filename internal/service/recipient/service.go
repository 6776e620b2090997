package recipient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/pkg/logger"
)

// Unassigned is the department label used for recipients without one.
const Unassigned = "Unassigned"

// Service implements the recipient registry. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo      Repository
	snapshots SnapshotIndex
	now       func() time.Time
}

// NewService creates a registry backed by the given repository. snapshots
// is consulted before a recipient is removed or has its email changed.
func NewService(repo Repository, snapshots SnapshotIndex) *Service {
	return &Service{repo: repo, snapshots: snapshots, now: time.Now}
}

// RecipientInput holds the fields for creating a recipient.
type RecipientInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Position   string `json:"position"`
	Phone      string `json:"phone"`
}

// Stats summarizes the registry.
type Stats struct {
	TotalRecipients int            `json:"total_recipients"`
	TotalGroups     int            `json:"total_groups"`
	ByDepartment    map[string]int `json:"by_department"`
}

// AddRecipient validates and stores a new recipient under its normalized email.
func (s *Service) AddRecipient(ctx context.Context, in RecipientInput) (*domain.Recipient, error) {
	name := strings.TrimSpace(in.Name)
	email := domain.NormalizeEmail(in.Email)
	if name == "" || email == "" {
		return nil, ErrMissingRequiredField
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	now := s.now().UTC()
	r := &domain.Recipient{
		ID:         uuid.New().String(),
		Email:      email,
		Name:       name,
		Department: strings.TrimSpace(in.Department),
		Position:   strings.TrimSpace(in.Position),
		Phone:      strings.TrimSpace(in.Phone),
		GroupIDs:   []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetRecipient returns a single recipient.
func (s *Service) GetRecipient(ctx context.Context, id string) (*domain.Recipient, error) {
	return s.repo.Get(ctx, id)
}

// ListRecipients returns recipients matching the filter.
func (s *Service) ListRecipients(ctx context.Context, f ListFilter) ([]domain.Recipient, int, error) {
	return s.repo.List(ctx, f)
}

// UpdateRecipient applies the non-nil fields. The email of a recipient that
// any campaign snapshot references cannot change.
func (s *Service) UpdateRecipient(ctx context.Context, id string, u UpdateFields) (*domain.Recipient, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if u.Email != nil {
		email := domain.NormalizeEmail(*u.Email)
		if email == "" {
			return nil, ErrMissingRequiredField
		}
		if email != r.Email {
			targeted, err := s.snapshots.IsRecipientTargeted(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("check snapshot references: %w", err)
			}
			if targeted {
				return nil, ErrReferencedByCampaign
			}
			if other, err := s.repo.GetByEmail(ctx, email); err == nil && other.ID != id {
				return nil, ErrDuplicateEmail
			} else if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("lookup email: %w", err)
			}
			r.Email = email
		}
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, ErrMissingRequiredField
		}
		r.Name = name
	}
	if u.Department != nil {
		r.Department = strings.TrimSpace(*u.Department)
	}
	if u.Position != nil {
		r.Position = strings.TrimSpace(*u.Position)
	}
	if u.Phone != nil {
		r.Phone = strings.TrimSpace(*u.Phone)
	}
	r.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// RemoveRecipient deletes a recipient that no campaign snapshot references.
// Group memberships are dropped with it.
func (s *Service) RemoveRecipient(ctx context.Context, id string) error {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	targeted, err := s.snapshots.IsRecipientTargeted(ctx, id)
	if err != nil {
		return fmt.Errorf("check snapshot references: %w", err)
	}
	if targeted {
		return ErrReferencedByCampaign
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("[recipient.Service] removed recipient %s (%s)", id, logger.RedactEmail(r.Email))
	return nil
}

// CreateGroup creates an empty group with a unique name.
func (s *Service) CreateGroup(ctx context.Context, name, description string) (*domain.RecipientGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrMissingGroupName
	}
	now := s.now().UTC()
	g := &domain.RecipientGroup{
		ID:          uuid.New().String(),
		Name:        name,
		Description: strings.TrimSpace(description),
		MemberIDs:   []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// GetGroup returns a single group with its member ids.
func (s *Service) GetGroup(ctx context.Context, id string) (*domain.RecipientGroup, error) {
	return s.repo.GetGroup(ctx, id)
}

// ListGroups returns every group.
func (s *Service) ListGroups(ctx context.Context) ([]domain.RecipientGroup, error) {
	return s.repo.ListGroups(ctx)
}

// DeleteGroup removes a group. Member recipients are not affected.
func (s *Service) DeleteGroup(ctx context.Context, id string) error {
	if _, err := s.repo.GetGroup(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteGroup(ctx, id)
}

// AddToGroup makes recipientID a member of groupID. Adding an existing
// member is a no-op.
func (s *Service) AddToGroup(ctx context.Context, groupID, recipientID string) error {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if _, err := s.repo.Get(ctx, recipientID); err != nil {
		return err
	}
	return s.repo.AddMember(ctx, groupID, recipientID)
}

// RemoveFromGroup drops a membership. Removing a non-member is a no-op.
func (s *Service) RemoveFromGroup(ctx context.Context, groupID, recipientID string) error {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return err
	}
	return s.repo.RemoveMember(ctx, groupID, recipientID)
}

// ResolveGroupMembers returns the group's current members. This is a live
// view, not a snapshot.
func (s *Service) ResolveGroupMembers(ctx context.Context, groupID string) ([]domain.Recipient, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.repo.Members(ctx, groupID)
}

// ResolveTargets expands explicit recipient ids and group ids into a
// deduplicated recipient list. Explicit recipients come first, then group
// members in group order. Unknown ids fail the whole resolution.
func (s *Service) ResolveTargets(ctx context.Context, spec domain.TargetSpec) ([]domain.Recipient, error) {
	seen := make(map[string]bool)
	var out []domain.Recipient

	add := func(r domain.Recipient) {
		if seen[r.ID] {
			return
		}
		seen[r.ID] = true
		out = append(out, r)
	}

	for _, id := range spec.RecipientIDs {
		if seen[id] {
			continue
		}
		r, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve recipient %s: %w", id, err)
		}
		add(*r)
	}
	for _, gid := range spec.GroupIDs {
		members, err := s.ResolveGroupMembers(ctx, gid)
		if err != nil {
			return nil, fmt.Errorf("resolve group %s: %w", gid, err)
		}
		for _, m := range members {
			add(m)
		}
	}
	return out, nil
}

// Departments returns the distinct department names in sorted order.
func (s *Service) Departments(ctx context.Context) ([]string, error) {
	counts, err := s.repo.CountByDepartment(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(counts))
	out := make([]string, 0, len(counts))
	for d := range counts {
		if d == "" {
			d = Unassigned
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Count returns the number of recipients in the registry.
func (s *Service) Count(ctx context.Context) (int, error) {
	_, total, err := s.repo.List(ctx, ListFilter{Limit: 1})
	return total, err
}

// Stats summarizes recipients and groups.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.CountByDepartment(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := s.repo.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{TotalGroups: len(groups), ByDepartment: make(map[string]int, len(counts))}
	for d, n := range counts {
		if d == "" {
			d = Unassigned
		}
		st.ByDepartment[d] += n
		st.TotalRecipients += n
	}
	return st, nil
}
