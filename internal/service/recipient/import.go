package recipient

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/ignite/phishsim/internal/domain"
)

// ImportReason names why a single import row was rejected.
type ImportReason string

const (
	ReasonMissingRequiredField ImportReason = "MissingRequiredField"
	ReasonDuplicateInBatch     ImportReason = "DuplicateInBatch"
	ReasonDuplicateEmail       ImportReason = "DuplicateEmail"
	ReasonStorageError         ImportReason = "StorageError"
)

// ImportRow is one raw row of the fixed import column set.
type ImportRow struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Position   string `json:"position"`
	Phone      string `json:"phone,omitempty"`
}

// RowError reports a rejected row by its 0-based index in the batch.
type RowError struct {
	Row    int          `json:"row"`
	Reason ImportReason `json:"reason"`
}

// ImportResult summarizes a batch. Rows created before a failure stay
// created; callers resubmit only the rows listed in Errors.
type ImportResult struct {
	CreatedCount int        `json:"created_count"`
	Errors       []RowError `json:"errors"`
	CreatedIDs   []string   `json:"created_ids,omitempty"`
}

// ImportOptions tunes a batch import.
type ImportOptions struct {
	// GroupID, when set, adds every created recipient to that group.
	GroupID string `json:"group_id,omitempty"`
}

// Import validates each row independently and creates the valid ones.
// Processing never stops on a row failure and nothing is rolled back.
// The returned error is non-nil only for batch-level problems.
func (s *Service) Import(ctx context.Context, rows []ImportRow, opts ImportOptions) (*ImportResult, error) {
	if opts.GroupID != "" {
		if _, err := s.repo.GetGroup(ctx, opts.GroupID); err != nil {
			return nil, err
		}
	}

	res := &ImportResult{Errors: []RowError{}}
	seen := make(map[string]bool, len(rows))

	for i, row := range rows {
		name := strings.TrimSpace(row.Name)
		email := domain.NormalizeEmail(row.Email)
		if name == "" || email == "" {
			res.Errors = append(res.Errors, RowError{Row: i, Reason: ReasonMissingRequiredField})
			continue
		}
		if seen[email] {
			res.Errors = append(res.Errors, RowError{Row: i, Reason: ReasonDuplicateInBatch})
			continue
		}
		seen[email] = true

		r, err := s.AddRecipient(ctx, RecipientInput{
			Name:       name,
			Email:      email,
			Department: row.Department,
			Position:   row.Position,
			Phone:      row.Phone,
		})
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			res.Errors = append(res.Errors, RowError{Row: i, Reason: ReasonDuplicateEmail})
			continue
		case errors.Is(err, ErrMissingRequiredField):
			res.Errors = append(res.Errors, RowError{Row: i, Reason: ReasonMissingRequiredField})
			continue
		case err != nil:
			log.Printf("[recipient.Import] row %d: %v", i, err)
			res.Errors = append(res.Errors, RowError{Row: i, Reason: ReasonStorageError})
			continue
		}

		res.CreatedCount++
		res.CreatedIDs = append(res.CreatedIDs, r.ID)

		if opts.GroupID != "" {
			if err := s.repo.AddMember(ctx, opts.GroupID, r.ID); err != nil {
				log.Printf("[recipient.Import] row %d: add to group %s: %v", i, opts.GroupID, err)
			}
		}
	}

	log.Printf("[recipient.Import] batch of %d rows: created=%d rejected=%d",
		len(rows), res.CreatedCount, len(res.Errors))
	return res, nil
}

// =============================================================================
// CSV PARSING
// =============================================================================

// importColumnAliases maps each import column to the header spellings
// accepted for it. Headers are compared after normalizeHeader.
var importColumnAliases = map[string][]string{
	"name":       {"name", "full_name", "fullname", "display_name", "recipient_name", "employee_name"},
	"email":      {"email", "email_address", "e_mail", "emailaddress", "mail", "work_email"},
	"department": {"department", "dept", "division", "team", "business_unit"},
	"position":   {"position", "title", "job_title", "jobtitle", "role"},
	"phone":      {"phone", "phone_number", "phonenumber", "mobile", "cell", "telephone", "tel"},
}

// ParseCSV reads a CSV file with a header row into import rows. Unknown
// columns are ignored. A file without name and email columns is rejected
// as a whole; row-level problems are left to Import.
func ParseCSV(r io.Reader) ([]ImportRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMissingHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := mapImportColumns(header)
	for _, required := range []string{"name", "email"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingHeader, required)
		}
	}

	var rows []ImportRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows), err)
		}
		if isBlankRecord(rec) {
			continue
		}
		cell := func(field string) string {
			idx, ok := cols[field]
			if !ok || idx >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[idx])
		}
		rows = append(rows, ImportRow{
			Name:       cell("name"),
			Email:      cell("email"),
			Department: cell("department"),
			Position:   cell("position"),
			Phone:      cell("phone"),
		})
	}
	return rows, nil
}

func mapImportColumns(header []string) map[string]int {
	cols := make(map[string]int)
	for idx, h := range header {
		normalized := normalizeHeader(h)
		for field, aliases := range importColumnAliases {
			if _, taken := cols[field]; taken {
				continue
			}
			for _, alias := range aliases {
				if normalized == alias {
					cols[field] = idx
					break
				}
			}
		}
	}
	return cols
}

func normalizeHeader(header string) string {
	normalized := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header, "\ufeff")))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return normalized
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
