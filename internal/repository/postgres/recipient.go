package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/service/recipient"
)

// RecipientRepo implements recipient.Repository against PostgreSQL.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient repository.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

const recipientColumns = `
	r.id, r.email, r.name, r.department, r.position, r.phone,
	COALESCE((SELECT array_agg(m.group_id::text ORDER BY m.added_at)
	          FROM phish_group_members m WHERE m.recipient_id = r.id), '{}'),
	r.created_at, r.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecipient(s rowScanner) (*domain.Recipient, error) {
	var r domain.Recipient
	var groups []string
	if err := s.Scan(&r.ID, &r.Email, &r.Name, &r.Department, &r.Position, &r.Phone,
		pq.Array(&groups), &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []string{}
	}
	r.GroupIDs = groups
	return &r, nil
}

func (r *RecipientRepo) Get(ctx context.Context, id string) (*domain.Recipient, error) {
	rec, err := scanRecipient(r.db.QueryRowContext(ctx,
		`SELECT `+recipientColumns+` FROM phish_recipients r WHERE r.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, recipient.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	return rec, nil
}

func (r *RecipientRepo) GetByEmail(ctx context.Context, email string) (*domain.Recipient, error) {
	rec, err := scanRecipient(r.db.QueryRowContext(ctx,
		`SELECT `+recipientColumns+` FROM phish_recipients r WHERE LOWER(r.email) = $1`,
		domain.NormalizeEmail(email)))
	if err == sql.ErrNoRows {
		return nil, recipient.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient by email: %w", err)
	}
	return rec, nil
}

func (r *RecipientRepo) List(ctx context.Context, f recipient.ListFilter) ([]domain.Recipient, int, error) {
	where := []string{"TRUE"}
	args := []interface{}{}
	idx := 1
	add := func(clause string, val interface{}) {
		where = append(where, fmt.Sprintf(clause, idx))
		args = append(args, val)
		idx++
	}
	if f.Department != "" {
		add("r.department = $%d", f.Department)
	}
	if f.GroupID != "" {
		add("EXISTS (SELECT 1 FROM phish_group_members gm WHERE gm.recipient_id = r.id AND gm.group_id = $%d)", f.GroupID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, fmt.Sprintf("(r.name ILIKE $%d OR r.email ILIKE $%d)", idx, idx))
		args = append(args, likePattern(s))
		idx++
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM phish_recipients r WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recipients: %w", err)
	}

	q := `SELECT ` + recipientColumns + ` FROM phish_recipients r WHERE ` + cond + ` ORDER BY r.created_at, r.id`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, f.Limit, f.Offset)
	} else if f.Offset > 0 {
		q += fmt.Sprintf(" OFFSET $%d", idx)
		args = append(args, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, *rec)
	}
	return out, total, rows.Err()
}

func (r *RecipientRepo) Create(ctx context.Context, rec *domain.Recipient) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO phish_recipients (id, email, name, department, position, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, domain.NormalizeEmail(rec.Email), rec.Name, rec.Department, rec.Position, rec.Phone,
		rec.CreatedAt, rec.UpdatedAt)
	if isUniqueViolation(err) {
		return recipient.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("create recipient: %w", err)
	}
	return nil
}

func (r *RecipientRepo) Update(ctx context.Context, rec *domain.Recipient) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE phish_recipients
		SET email = $1, name = $2, department = $3, position = $4, phone = $5, updated_at = $6
		WHERE id = $7
	`, domain.NormalizeEmail(rec.Email), rec.Name, rec.Department, rec.Position, rec.Phone, rec.UpdatedAt, rec.ID)
	if isUniqueViolation(err) {
		return recipient.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("update recipient: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return recipient.ErrNotFound
	}
	return nil
}

// Delete relies on ON DELETE CASCADE to drop memberships.
// Delete locks the recipient row before checking snapshot references, so a
// launch freezing the same recipient cannot commit in between.
func (r *RecipientRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete recipient: %w", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM phish_recipients WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err == sql.ErrNoRows {
		return recipient.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock recipient: %w", err)
	}

	var targeted bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM phish_campaign_targets WHERE recipient_id = $1)`, id,
	).Scan(&targeted); err != nil {
		return fmt.Errorf("check snapshot reference: %w", err)
	}
	if targeted {
		return recipient.ErrReferencedByCampaign
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM phish_recipients WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete recipient: %w", err)
	}
	return tx.Commit()
}

func (r *RecipientRepo) CountByDepartment(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT department, COUNT(*) FROM phish_recipients GROUP BY department`)
	if err != nil {
		return nil, fmt.Errorf("count by department: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var dept string
		var n int
		if err := rows.Scan(&dept, &n); err != nil {
			return nil, fmt.Errorf("scan department count: %w", err)
		}
		out[dept] = n
	}
	return out, rows.Err()
}

// =============================================================================
// GROUPS
// =============================================================================

const groupColumns = `
	g.id, g.name, g.description,
	COALESCE((SELECT array_agg(m.recipient_id::text ORDER BY m.added_at)
	          FROM phish_group_members m WHERE m.group_id = g.id), '{}'),
	g.created_at, g.updated_at`

func scanGroup(s rowScanner) (*domain.RecipientGroup, error) {
	var g domain.RecipientGroup
	var members []string
	if err := s.Scan(&g.ID, &g.Name, &g.Description, pq.Array(&members), &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	if members == nil {
		members = []string{}
	}
	g.MemberIDs = members
	return &g, nil
}

func (r *RecipientRepo) GetGroup(ctx context.Context, id string) (*domain.RecipientGroup, error) {
	g, err := scanGroup(r.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM phish_groups g WHERE g.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, recipient.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (r *RecipientRepo) ListGroups(ctx context.Context) ([]domain.RecipientGroup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM phish_groups g ORDER BY g.created_at, g.id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	out := []domain.RecipientGroup{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (r *RecipientRepo) CreateGroup(ctx context.Context, g *domain.RecipientGroup) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO phish_groups (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, g.ID, g.Name, g.Description, g.CreatedAt, g.UpdatedAt)
	if isUniqueViolation(err) {
		return recipient.ErrDuplicateGroupName
	}
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

func (r *RecipientRepo) DeleteGroup(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM phish_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return recipient.ErrGroupNotFound
	}
	return nil
}

func (r *RecipientRepo) AddMember(ctx context.Context, groupID, recipientID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO phish_group_members (group_id, recipient_id, added_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING
	`, groupID, recipientID)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

func (r *RecipientRepo) RemoveMember(ctx context.Context, groupID, recipientID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM phish_group_members WHERE group_id = $1 AND recipient_id = $2`,
		groupID, recipientID); err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return nil
}

func (r *RecipientRepo) Members(ctx context.Context, groupID string) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recipientColumns+`
		FROM phish_group_members gm
		JOIN phish_recipients r ON r.id = gm.recipient_id
		WHERE gm.group_id = $1
		ORDER BY gm.added_at, r.id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	defer rows.Close()

	out := []domain.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
