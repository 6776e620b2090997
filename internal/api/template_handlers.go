package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/pkg/httputil"
	"github.com/ignite/phishsim/internal/service/template"
)

// ListTemplates returns templates, optionally filtered.
//
//	GET /api/templates?category=&search=
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.templates.List(r.Context(), template.ListFilter{Category: q.Get("category"), Search: q.Get("search")})
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []domain.Template{}
	}
	httputil.OK(w, map[string]any{"templates": list})
}

func (h *Handlers) ListTemplateCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.templates.Categories(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if cats == nil {
		cats = []string{}
	}
	httputil.OK(w, map[string]any{"categories": cats})
}

func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in template.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	t, err := h.templates.Create(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, t)
}

func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Get(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, t)
}

func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var u template.UpdateFields
	if !httputil.Decode(w, r, &u) {
		return
	}
	t, err := h.templates.Update(r.Context(), chi.URLParam(r, "templateID"), u)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, t)
}

func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.Delete(r.Context(), chi.URLParam(r, "templateID")); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) DuplicateTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Duplicate(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, t)
}

// RenderTemplate previews a template with caller-supplied values.
//
//	POST /api/templates/{templateID}/render {"variables": {...}}
func (h *Handlers) RenderTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variables map[string]string `json:"variables"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	out, err := h.templates.Render(r.Context(), chi.URLParam(r, "templateID"), req.Variables)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, out)
}
