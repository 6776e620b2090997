// Package postgres implements the service repositories against PostgreSQL
// using database/sql with the lib/pq driver.
package postgres

import (
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/ignite/phishsim/internal/service/campaign"
	"github.com/ignite/phishsim/internal/service/engagement"
	"github.com/ignite/phishsim/internal/service/recipient"
	"github.com/ignite/phishsim/internal/service/template"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func joinComma(parts []string) string {
	return strings.Join(parts, ", ")
}

// likePattern escapes s for use inside an ILIKE '%...%' match.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

var (
	_ recipient.Repository  = (*RecipientRepo)(nil)
	_ template.Repository   = (*TemplateRepo)(nil)
	_ campaign.Repository   = (*CampaignRepo)(nil)
	_ engagement.Repository = (*EventRepo)(nil)
)
