package recipient_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/repository/memory"
	"github.com/ignite/phishsim/internal/service/recipient"
)

// stubSnapshots marks a fixed set of recipient ids as targeted.
type stubSnapshots map[string]bool

func (s stubSnapshots) IsRecipientTargeted(_ context.Context, id string) (bool, error) {
	return s[id], nil
}

func newService(targeted stubSnapshots) *recipient.Service {
	if targeted == nil {
		targeted = stubSnapshots{}
	}
	return recipient.NewService(memory.NewStore().Recipients(), targeted)
}

func add(t *testing.T, svc *recipient.Service, name, email, dept string) *domain.Recipient {
	t.Helper()
	r, err := svc.AddRecipient(context.Background(), recipient.RecipientInput{Name: name, Email: email, Department: dept})
	require.NoError(t, err)
	return r
}

// =============================================================================
// Recipients
// =============================================================================

func TestAddRecipient_NormalizesAndRejectsDuplicates(t *testing.T) {
	svc := newService(nil)
	ctx := context.Background()

	r := add(t, svc, " Alice ", "  Alice@Corp.Example ", "Finance")
	assert.Equal(t, "alice@corp.example", r.Email)
	assert.Equal(t, "Alice", r.Name)
	assert.NotEmpty(t, r.ID)

	_, err := svc.AddRecipient(ctx, recipient.RecipientInput{Name: "Other", Email: "ALICE@corp.example"})
	assert.ErrorIs(t, err, recipient.ErrDuplicateEmail)
}

func TestAddRecipient_RequiredFields(t *testing.T) {
	svc := newService(nil)
	tests := []struct {
		name string
		in   recipient.RecipientInput
	}{
		{"missing name", recipient.RecipientInput{Email: "a@x.com"}},
		{"blank name", recipient.RecipientInput{Name: "   ", Email: "a@x.com"}},
		{"missing email", recipient.RecipientInput{Name: "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddRecipient(context.Background(), tt.in)
			assert.ErrorIs(t, err, recipient.ErrMissingRequiredField)
		})
	}
}

func TestRemoveRecipient(t *testing.T) {
	ctx := context.Background()

	t.Run("referenced by campaign", func(t *testing.T) {
		targeted := stubSnapshots{}
		svc := newService(targeted)
		r := add(t, svc, "A", "a@x.com", "")
		targeted[r.ID] = true
		assert.ErrorIs(t, svc.RemoveRecipient(ctx, r.ID), recipient.ErrReferencedByCampaign)
		_, err := svc.GetRecipient(ctx, r.ID)
		assert.NoError(t, err)
	})

	t.Run("drops group memberships", func(t *testing.T) {
		svc := newService(nil)
		r := add(t, svc, "A", "a@x.com", "")
		g, err := svc.CreateGroup(ctx, "G", "")
		require.NoError(t, err)
		require.NoError(t, svc.AddToGroup(ctx, g.ID, r.ID))

		require.NoError(t, svc.RemoveRecipient(ctx, r.ID))
		members, err := svc.ResolveGroupMembers(ctx, g.ID)
		require.NoError(t, err)
		assert.Empty(t, members)

		// the email is free again
		add(t, svc, "A2", "a@x.com", "")
	})

	t.Run("not found", func(t *testing.T) {
		svc := newService(nil)
		assert.ErrorIs(t, svc.RemoveRecipient(ctx, "missing"), recipient.ErrNotFound)
	})
}

func TestUpdateRecipient_EmailFrozenOnceTargeted(t *testing.T) {
	ctx := context.Background()
	targeted := stubSnapshots{}
	svc := newService(targeted)
	r := add(t, svc, "A", "a@x.com", "Sales")

	dept := "Marketing"
	updated, err := svc.UpdateRecipient(ctx, r.ID, recipient.UpdateFields{Department: &dept})
	require.NoError(t, err)
	assert.Equal(t, "Marketing", updated.Department)

	targeted[r.ID] = true
	email := "new@x.com"
	_, err = svc.UpdateRecipient(ctx, r.ID, recipient.UpdateFields{Email: &email})
	assert.ErrorIs(t, err, recipient.ErrReferencedByCampaign)

	// same address in a different case is not a change
	same := "A@X.COM"
	_, err = svc.UpdateRecipient(ctx, r.ID, recipient.UpdateFields{Email: &same})
	assert.NoError(t, err)
}

// =============================================================================
// Groups
// =============================================================================

func TestCreateGroup_DuplicateName(t *testing.T) {
	svc := newService(nil)
	ctx := context.Background()
	_, err := svc.CreateGroup(ctx, "Finance", "money people")
	require.NoError(t, err)
	_, err = svc.CreateGroup(ctx, "Finance", "again")
	assert.ErrorIs(t, err, recipient.ErrDuplicateGroupName)
}

func TestGroupMembership_Idempotent(t *testing.T) {
	svc := newService(nil)
	ctx := context.Background()
	a := add(t, svc, "A", "a@x.com", "")
	b := add(t, svc, "B", "b@x.com", "")
	g, err := svc.CreateGroup(ctx, "G", "")
	require.NoError(t, err)

	require.NoError(t, svc.AddToGroup(ctx, g.ID, a.ID))
	require.NoError(t, svc.AddToGroup(ctx, g.ID, a.ID))
	require.NoError(t, svc.AddToGroup(ctx, g.ID, b.ID))

	members, err := svc.ResolveGroupMembers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, a.ID, members[0].ID)

	require.NoError(t, svc.RemoveFromGroup(ctx, g.ID, a.ID))
	require.NoError(t, svc.RemoveFromGroup(ctx, g.ID, a.ID))
	members, err = svc.ResolveGroupMembers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, b.ID, members[0].ID)

	assert.ErrorIs(t, svc.AddToGroup(ctx, "missing", a.ID), recipient.ErrGroupNotFound)
	assert.ErrorIs(t, svc.AddToGroup(ctx, g.ID, "missing"), recipient.ErrNotFound)
}

func TestResolveTargets_Deduplicates(t *testing.T) {
	svc := newService(nil)
	ctx := context.Background()
	a := add(t, svc, "A", "a@x.com", "")
	b := add(t, svc, "B", "b@x.com", "")
	c := add(t, svc, "C", "c@x.com", "")
	g1, _ := svc.CreateGroup(ctx, "G1", "")
	g2, _ := svc.CreateGroup(ctx, "G2", "")
	require.NoError(t, svc.AddToGroup(ctx, g1.ID, b.ID))
	require.NoError(t, svc.AddToGroup(ctx, g1.ID, a.ID))
	require.NoError(t, svc.AddToGroup(ctx, g2.ID, c.ID))
	require.NoError(t, svc.AddToGroup(ctx, g2.ID, b.ID))

	got, err := svc.ResolveTargets(ctx, domain.TargetSpec{
		RecipientIDs: []string{a.ID, a.ID},
		GroupIDs:     []string{g1.ID, g2.ID},
	})
	require.NoError(t, err)
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ids)

	_, err = svc.ResolveTargets(ctx, domain.TargetSpec{GroupIDs: []string{"missing"}})
	assert.ErrorIs(t, err, recipient.ErrGroupNotFound)
}

func TestDepartmentsAndStats(t *testing.T) {
	svc := newService(nil)
	ctx := context.Background()
	add(t, svc, "A", "a@x.com", "Sales")
	add(t, svc, "B", "b@x.com", "Finance")
	add(t, svc, "C", "c@x.com", "Sales")
	add(t, svc, "D", "d@x.com", "")
	_, err := svc.CreateGroup(ctx, "G", "")
	require.NoError(t, err)

	depts, err := svc.Departments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Finance", "Sales", recipient.Unassigned}, depts)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalRecipients)
	assert.Equal(t, 1, st.TotalGroups)
	assert.Equal(t, 2, st.ByDepartment["Sales"])
	assert.Equal(t, 1, st.ByDepartment[recipient.Unassigned])

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
