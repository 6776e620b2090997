package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/pkg/httputil"
	"github.com/ignite/phishsim/internal/service/recipient"
)

const maxImportBytes = 10 << 20

// ListRecipients returns a page of recipients.
//
//	GET /api/recipients?department=&group_id=&search=&page=&limit=
func (h *Handlers) ListRecipients(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 50, 500)
	q := r.URL.Query()
	list, total, err := h.recipients.ListRecipients(r.Context(), recipient.ListFilter{
		Department: q.Get("department"),
		GroupID:    q.Get("group_id"),
		Search:     q.Get("search"),
		Limit:      p.Limit,
		Offset:     p.Offset,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []domain.Recipient{}
	}
	httputil.OK(w, NewPaginatedResponse(list, p, total))
}

func (h *Handlers) CreateRecipient(w http.ResponseWriter, r *http.Request) {
	var in recipient.RecipientInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	rec, err := h.recipients.AddRecipient(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, rec)
}

func (h *Handlers) GetRecipient(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recipients.GetRecipient(r.Context(), chi.URLParam(r, "recipientID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, rec)
}

func (h *Handlers) UpdateRecipient(w http.ResponseWriter, r *http.Request) {
	var u recipient.UpdateFields
	if !httputil.Decode(w, r, &u) {
		return
	}
	rec, err := h.recipients.UpdateRecipient(r.Context(), chi.URLParam(r, "recipientID"), u)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, rec)
}

func (h *Handlers) DeleteRecipient(w http.ResponseWriter, r *http.Request) {
	if err := h.recipients.RemoveRecipient(r.Context(), chi.URLParam(r, "recipientID")); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) RecipientStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.recipients.Stats(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, st)
}

func (h *Handlers) ListDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.recipients.Departments(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"departments": depts})
}

type importRequest struct {
	Rows    []recipient.ImportRow `json:"rows"`
	GroupID string                `json:"group_id"`
}

// ImportRecipients validates and creates a batch. JSON bodies carry rows
// directly; text/csv and multipart ("file") bodies are parsed as CSV with
// group_id taken from the query string.
//
//	POST /api/recipients/import
func (h *Handlers) ImportRecipients(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var req importRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "text/csv", "application/csv":
		rows, err := recipient.ParseCSV(r.Body)
		if err != nil {
			respondError(w, err)
			return
		}
		req = importRequest{Rows: rows, GroupID: r.URL.Query().Get("group_id")}
	case "multipart/form-data":
		file, _, err := r.FormFile("file")
		if err != nil {
			httputil.BadRequest(w, "missing file field")
			return
		}
		defer file.Close()
		rows, err := recipient.ParseCSV(file)
		if err != nil {
			respondError(w, err)
			return
		}
		req = importRequest{Rows: rows, GroupID: firstNonEmpty(r.FormValue("group_id"), r.URL.Query().Get("group_id"))}
	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			httputil.BadRequest(w, "invalid JSON: "+err.Error())
			return
		}
	}

	res, err := h.recipients.Import(r.Context(), req.Rows, recipient.ImportOptions{GroupID: strings.TrimSpace(req.GroupID)})
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, res)
}

// =============================================================================
// GROUPS
// =============================================================================

type groupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.recipients.ListGroups(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if groups == nil {
		groups = []domain.RecipientGroup{}
	}
	httputil.OK(w, map[string]any{"groups": groups})
}

func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	g, err := h.recipients.CreateGroup(r.Context(), req.Name, req.Description)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, g)
}

func (h *Handlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.recipients.GetGroup(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, g)
}

func (h *Handlers) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.recipients.DeleteGroup(r.Context(), chi.URLParam(r, "groupID")); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) ListGroupMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.recipients.ResolveGroupMembers(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		respondError(w, err)
		return
	}
	if members == nil {
		members = []domain.Recipient{}
	}
	httputil.OK(w, map[string]any{"members": members})
}

func (h *Handlers) AddGroupMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientID string `json:"recipient_id"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.RecipientID == "" {
		httputil.BadRequest(w, "recipient_id is required")
		return
	}
	if err := h.recipients.AddToGroup(r.Context(), chi.URLParam(r, "groupID"), req.RecipientID); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) RemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	err := h.recipients.RemoveFromGroup(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "recipientID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
