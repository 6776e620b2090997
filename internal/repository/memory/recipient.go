package memory

import (
	"context"
	"strings"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/service/recipient"
)

// RecipientRepo implements recipient.Repository in memory.
type RecipientRepo struct{ s *Store }

func copyRecipient(r *domain.Recipient) domain.Recipient {
	cp := *r
	cp.GroupIDs = append([]string{}, r.GroupIDs...)
	return cp
}

func copyGroup(g *domain.RecipientGroup) domain.RecipientGroup {
	cp := *g
	cp.MemberIDs = append([]string{}, g.MemberIDs...)
	return cp
}

func (r *RecipientRepo) Get(_ context.Context, id string) (*domain.Recipient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.recipients[id]
	if !ok {
		return nil, recipient.ErrNotFound
	}
	cp := copyRecipient(rec)
	return &cp, nil
}

func (r *RecipientRepo) GetByEmail(ctx context.Context, email string) (*domain.Recipient, error) {
	r.s.mu.RLock()
	id, ok := r.s.byEmail[domain.NormalizeEmail(email)]
	r.s.mu.RUnlock()
	if !ok {
		return nil, recipient.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *RecipientRepo) List(_ context.Context, f recipient.ListFilter) ([]domain.Recipient, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	var out []domain.Recipient
	for _, id := range r.s.recipientOrder {
		rec := r.s.recipients[id]
		if f.Department != "" && rec.Department != f.Department {
			continue
		}
		if f.GroupID != "" && !containsString(rec.GroupIDs, f.GroupID) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(rec.Name), search) &&
			!strings.Contains(rec.Email, search) {
			continue
		}
		out = append(out, copyRecipient(rec))
	}

	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(out) || f.Limit <= 0 {
		end = len(out)
	}
	return out[f.Offset:end], total, nil
}

func (r *RecipientRepo) Create(_ context.Context, rec *domain.Recipient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email := domain.NormalizeEmail(rec.Email)
	if _, taken := r.s.byEmail[email]; taken {
		return recipient.ErrDuplicateEmail
	}
	cp := copyRecipient(rec)
	r.s.recipients[cp.ID] = &cp
	r.s.recipientOrder = append(r.s.recipientOrder, cp.ID)
	r.s.byEmail[email] = cp.ID
	return nil
}

func (r *RecipientRepo) Update(_ context.Context, rec *domain.Recipient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.recipients[rec.ID]
	if !ok {
		return recipient.ErrNotFound
	}
	oldEmail := domain.NormalizeEmail(cur.Email)
	newEmail := domain.NormalizeEmail(rec.Email)
	if newEmail != oldEmail {
		if _, taken := r.s.byEmail[newEmail]; taken {
			return recipient.ErrDuplicateEmail
		}
		delete(r.s.byEmail, oldEmail)
		r.s.byEmail[newEmail] = rec.ID
	}
	cur.Email = newEmail
	cur.Name = rec.Name
	cur.Department = rec.Department
	cur.Position = rec.Position
	cur.Phone = rec.Phone
	cur.UpdatedAt = rec.UpdatedAt
	return nil
}

func (r *RecipientRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.recipients[id]
	if !ok {
		return recipient.ErrNotFound
	}
	if r.s.targetedLocked(id) {
		return recipient.ErrReferencedByCampaign
	}
	for _, gid := range rec.GroupIDs {
		if g, ok := r.s.groups[gid]; ok {
			g.MemberIDs = removeString(g.MemberIDs, id)
		}
	}
	delete(r.s.byEmail, domain.NormalizeEmail(rec.Email))
	delete(r.s.recipients, id)
	r.s.recipientOrder = removeString(r.s.recipientOrder, id)
	return nil
}

func (r *RecipientRepo) CountByDepartment(_ context.Context) (map[string]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]int)
	for _, rec := range r.s.recipients {
		out[rec.Department]++
	}
	return out, nil
}

func (r *RecipientRepo) GetGroup(_ context.Context, id string) (*domain.RecipientGroup, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.groups[id]
	if !ok {
		return nil, recipient.ErrGroupNotFound
	}
	cp := copyGroup(g)
	return &cp, nil
}

func (r *RecipientRepo) ListGroups(_ context.Context) ([]domain.RecipientGroup, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.RecipientGroup, 0, len(r.s.groupOrder))
	for _, id := range r.s.groupOrder {
		out = append(out, copyGroup(r.s.groups[id]))
	}
	return out, nil
}

func (r *RecipientRepo) CreateGroup(_ context.Context, g *domain.RecipientGroup) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.groups {
		if strings.EqualFold(existing.Name, g.Name) {
			return recipient.ErrDuplicateGroupName
		}
	}
	cp := copyGroup(g)
	r.s.groups[cp.ID] = &cp
	r.s.groupOrder = append(r.s.groupOrder, cp.ID)
	return nil
}

func (r *RecipientRepo) DeleteGroup(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.groups[id]
	if !ok {
		return recipient.ErrGroupNotFound
	}
	for _, rid := range g.MemberIDs {
		if rec, ok := r.s.recipients[rid]; ok {
			rec.GroupIDs = removeString(rec.GroupIDs, id)
		}
	}
	delete(r.s.groups, id)
	r.s.groupOrder = removeString(r.s.groupOrder, id)
	return nil
}

func (r *RecipientRepo) AddMember(_ context.Context, groupID, recipientID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.groups[groupID]
	if !ok {
		return recipient.ErrGroupNotFound
	}
	rec, ok := r.s.recipients[recipientID]
	if !ok {
		return recipient.ErrNotFound
	}
	if containsString(g.MemberIDs, recipientID) {
		return nil
	}
	g.MemberIDs = append(g.MemberIDs, recipientID)
	rec.GroupIDs = append(rec.GroupIDs, groupID)
	return nil
}

func (r *RecipientRepo) RemoveMember(_ context.Context, groupID, recipientID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.groups[groupID]
	if !ok {
		return recipient.ErrGroupNotFound
	}
	g.MemberIDs = removeString(g.MemberIDs, recipientID)
	if rec, ok := r.s.recipients[recipientID]; ok {
		rec.GroupIDs = removeString(rec.GroupIDs, groupID)
	}
	return nil
}

func (r *RecipientRepo) Members(_ context.Context, groupID string) ([]domain.Recipient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.groups[groupID]
	if !ok {
		return nil, recipient.ErrGroupNotFound
	}
	out := make([]domain.Recipient, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		if rec, ok := r.s.recipients[id]; ok {
			out = append(out, copyRecipient(rec))
		}
	}
	return out, nil
}
