package template

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/phishsim/internal/domain"
)

// Standard per-recipient variables supplied by the dispatcher.
const (
	VarRecipientName  = "recipient_name"
	VarRecipientEmail = "recipient_email"
	VarName           = "name"
	VarEmail          = "email"
	VarDepartment     = "department"
	VarPosition       = "position"
	VarPhishingLink   = "phishing_link"
	VarTrackingPixel  = "tracking_pixel"
	VarReportLink     = "report_link"
)

var standardVars = map[string]bool{
	VarRecipientName: true, VarRecipientEmail: true, VarName: true, VarEmail: true,
	VarDepartment: true, VarPosition: true, VarPhishingLink: true, VarTrackingPixel: true,
	VarReportLink: true,
}

// Unsupplied returns the placeholders in t that RecipientVars does not fill,
// in order of first appearance.
func Unsupplied(t *domain.Template) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, text := range []string{t.Subject, t.Body} {
		names, err := Placeholders(text)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if !standardVars[n] && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out, nil
}

// Rendered is a template personalized for one recipient.
type Rendered struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Renderer substitutes placeholder values through the Liquid engine.
// Parsed templates are cached by template id, version and source text.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with an empty parse cache.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Check compiles text without rendering it.
func (r *Renderer) Check(text string) error {
	if _, err := r.engine.ParseString(text); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedSyntax, err)
	}
	return nil
}

// Render personalizes t with vars. Every placeholder the template uses must
// have a value; declared but unused variables need none.
func (r *Renderer) Render(t *domain.Template, vars map[string]string) (*Rendered, error) {
	subject, err := r.renderPart(t, "subject", t.Subject, vars)
	if err != nil {
		return nil, err
	}
	body, err := r.renderPart(t, "body", t.Body, vars)
	if err != nil {
		return nil, err
	}
	return &Rendered{Subject: subject, Body: body}, nil
}

func (r *Renderer) renderPart(t *domain.Template, part, text string, vars map[string]string) (string, error) {
	used, err := Placeholders(text)
	if err != nil {
		return "", err
	}
	bindings := make(map[string]interface{}, len(used))
	for _, name := range used {
		v, ok := vars[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingVariable, name)
		}
		bindings[name] = v
	}
	if len(used) == 0 {
		return text, nil
	}

	key := fmt.Sprintf("%s:%d:%s:%s", t.ID, t.Version, part, text)
	var tpl *liquid.Template
	if cached, ok := r.cache.Load(key); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, perr := r.engine.ParseString(text)
		if perr != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedSyntax, perr)
		}
		r.cache.Store(key, parsed)
		tpl = parsed
	}

	out, rerr := tpl.RenderString(bindings)
	if rerr != nil {
		return "", fmt.Errorf("render %s: %w", part, rerr)
	}
	return out, nil
}

// InjectTrackingPixel places an invisible image pointing at pixelURL before
// the closing body tag, or appends it when the body has none.
func InjectTrackingPixel(body, pixelURL string) string {
	if pixelURL == "" {
		return body
	}
	img := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none;border:0" />`, html.EscapeString(pixelURL))
	lower := strings.ToLower(body)
	if idx := strings.LastIndex(lower, "</body>"); idx >= 0 {
		return body[:idx] + img + body[idx:]
	}
	return body + img
}

// RecipientVars builds the standard variable set for one snapshot entry.
func RecipientVars(e domain.SnapshotEntry, phishingLink, pixelURL, reportLink string) map[string]string {
	return map[string]string{
		VarRecipientName:  e.Name,
		VarRecipientEmail: e.Email,
		VarName:           e.Name,
		VarEmail:          e.Email,
		VarDepartment:     e.Department,
		VarPosition:       e.Position,
		VarPhishingLink:   phishingLink,
		VarTrackingPixel:  pixelURL,
		VarReportLink:     reportLink,
	}
}
