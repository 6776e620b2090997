package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/service/template"
)

// TemplateRepo implements template.Repository against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

const templateColumns = `id, name, subject, body, variables, category, version,
	parent_id, locked, usage_count, created_at, updated_at`

func scanTemplate(s rowScanner) (*domain.Template, error) {
	var t domain.Template
	var vars []byte
	var parent sql.NullString
	if err := s.Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &vars, &t.Category, &t.Version,
		&parent, &t.Locked, &t.UsageCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &t.Variables); err != nil {
			return nil, fmt.Errorf("decode variables: %w", err)
		}
	}
	if t.Variables == nil {
		t.Variables = []string{}
	}
	if parent.Valid {
		p := parent.String
		t.ParentID = &p
	}
	return &t, nil
}

func (r *TemplateRepo) Get(ctx context.Context, id string) (*domain.Template, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM phish_templates WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) List(ctx context.Context, f template.ListFilter) ([]domain.Template, error) {
	q := `SELECT ` + templateColumns + ` FROM phish_templates WHERE TRUE`
	args := []interface{}{}
	idx := 1
	if f.Category != "" {
		q += fmt.Sprintf(" AND category = $%d", idx)
		args = append(args, f.Category)
		idx++
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q += fmt.Sprintf(" AND name ILIKE $%d", idx)
		args = append(args, likePattern(s))
	}
	q += " ORDER BY created_at DESC, id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	out := []domain.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *TemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	vars, err := json.Marshal(t.Variables)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO phish_templates
			(id, name, subject, body, variables, category, version, parent_id,
			 locked, usage_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, t.ID, t.Name, t.Subject, t.Body, vars, t.Category, t.Version, t.ParentID,
		t.Locked, t.UsageCount, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

// Update never touches a locked row.
func (r *TemplateRepo) Update(ctx context.Context, t *domain.Template) error {
	vars, err := json.Marshal(t.Variables)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE phish_templates
		SET name = $1, subject = $2, body = $3, variables = $4, category = $5, updated_at = $6
		WHERE id = $7 AND locked = FALSE
	`, t.Name, t.Subject, t.Body, vars, t.Category, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return template.ErrNotFound
	}
	return nil
}

func (r *TemplateRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM phish_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return template.ErrNotFound
	}
	return nil
}

func (r *TemplateRepo) MarkUsed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE phish_templates SET locked = TRUE, usage_count = usage_count + 1
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark template used: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return template.ErrNotFound
	}
	return nil
}

func (r *TemplateRepo) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM phish_templates WHERE category <> '' ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
