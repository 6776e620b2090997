// +build ignore

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/phishsim/internal/repository/postgres"
	"github.com/ignite/phishsim/internal/service/recipient"
	"github.com/ignite/phishsim/internal/service/template"
)

// Seeds a demo registry and two templates through the services so every
// validation rule applies. Safe to re-run: duplicates are reported per row.
//
//	DATABASE_URL=postgres://... go run scripts/seed_demo.go

const passwordExpiryBody = `<html><body>
<p>Hi {{name}},</p>
<p>Your network password expires in 24 hours. To keep your current
password, confirm it using the link below.</p>
<p><a href="{{phishing_link}}">Keep my current password</a></p>
<p>IT Service Desk</p>
</body></html>`

const invoiceBody = `<html><body>
<p>Hello {{name}},</p>
<p>An invoice billed to {{department}} is overdue. Review the attached statement
before end of day to avoid a late fee.</p>
<p><a href="{{phishing_link}}">View invoice</a></p>
</body></html>`

var demoStaff = []recipient.ImportRow{
	{Name: "Alice Moreau", Email: "alice.moreau@example.com", Department: "Finance", Position: "Controller"},
	{Name: "Bram de Vries", Email: "bram.devries@example.com", Department: "Finance", Position: "Accountant"},
	{Name: "Chen Wei", Email: "chen.wei@example.com", Department: "Engineering", Position: "SRE"},
	{Name: "Dana Okafor", Email: "dana.okafor@example.com", Department: "Engineering", Position: "Developer"},
	{Name: "Eli Navarro", Email: "eli.navarro@example.com", Department: "Sales", Position: "Account Executive"},
	{Name: "Farah Haddad", Email: "farah.haddad@example.com", Department: "Sales", Position: "Sales Lead"},
	{Name: "Gus Lindqvist", Email: "gus.lindqvist@example.com", Position: "Contractor"},
}

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}

	campaigns := postgres.NewCampaignRepo(db)
	recipients := recipient.NewService(postgres.NewRecipientRepo(db), campaigns)
	templates := template.NewService(postgres.NewTemplateRepo(db), campaigns)

	fmt.Println("Seeding recipient group...")
	group, err := recipients.CreateGroup(ctx, "Demo cohort", "Seeded demo recipients")
	switch {
	case errors.Is(err, recipient.ErrDuplicateGroupName):
		fmt.Println("   group already exists, importing without membership")
	case err != nil:
		log.Fatalf("create group: %v", err)
	default:
		fmt.Printf("   created group %s\n", group.ID)
	}

	opts := recipient.ImportOptions{}
	if group != nil {
		opts.GroupID = group.ID
	}
	res, err := recipients.Import(ctx, demoStaff, opts)
	if err != nil {
		log.Fatalf("import: %v", err)
	}
	fmt.Printf("   imported %d recipients\n", res.CreatedCount)
	for _, e := range res.Errors {
		fmt.Printf("   row %d skipped: %s\n", e.Row, e.Reason)
	}

	fmt.Println("Seeding templates...")
	for _, in := range []template.CreateInput{
		{
			Name:      "Password expiry",
			Subject:   "Action required: your password expires today",
			Body:      passwordExpiryBody,
			Variables: []string{"name", "phishing_link"},
			Category:  "credentials",
		},
		{
			Name:      "Overdue invoice",
			Subject:   "Overdue invoice for {{department}}",
			Body:      invoiceBody,
			Variables: []string{"name", "department", "phishing_link"},
			Category:  "finance",
		},
	} {
		t, err := templates.Create(ctx, in)
		if err != nil {
			log.Printf("Warning creating template %q: %v", in.Name, err)
			continue
		}
		fmt.Printf("   created template %q (%s)\n", t.Name, t.ID)
	}

	fmt.Printf("Seed completed at %s\n", time.Now().Format(time.RFC3339))
}
