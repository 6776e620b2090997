package tracking

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/pkg/httputil"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// maxSubmitBody bounds how much of a submitted form is read before it is
// thrown away.
const maxSubmitBody = 1 << 20

// SubmitURLParam is the query parameter through which the landing page
// learns where to post its form.
const SubmitURLParam = "submit_url"

// CampaignLookup resolves the landing page of a campaign.
type CampaignLookup interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
}

type Handler struct {
	signer    *Signer
	sink      Sink
	campaigns CampaignLookup
	bots      *BotDetector
	now       func() time.Time
}

func NewHandler(signer *Signer, sink Sink, campaigns CampaignLookup) *Handler {
	return &Handler{signer: signer, sink: sink, campaigns: campaigns, now: time.Now}
}

// SetBotFilter drops opens and clicks from known scanners and link
// prefetchers. Submissions are always recorded.
func (h *Handler) SetBotFilter(d *BotDetector) { h.bots = d }

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/track/open/{data}/{sig}", h.HandleOpen)
	r.Get("/track/click/{data}/{sig}", h.HandleClick)
	r.Post("/track/submit/{data}/{sig}", h.HandleSubmit)
	r.Post("/track/report/{data}/{sig}", h.HandleReport)
	r.Get("/track/report/{data}/{sig}", h.HandleReport)
	r.Get("/health", h.HandleHealth)
	return r
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	campaignID, recipientID, err := h.signer.Decode(chi.URLParam(r, "data"), chi.URLParam(r, "sig"))
	if err != nil {
		h.servePixel(w)
		return
	}
	h.publish(r, domain.EventOpened, campaignID, recipientID)
	h.servePixel(w)
}

func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	campaignID, recipientID, err := h.signer.Decode(chi.URLParam(r, "data"), chi.URLParam(r, "sig"))
	if err != nil {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}

	c, err := h.campaigns.Get(r.Context(), campaignID)
	if err != nil || c.DeliveryTargetURL == "" {
		http.Error(w, "link expired", http.StatusNotFound)
		return
	}
	landing, err := url.Parse(c.DeliveryTargetURL)
	if err != nil {
		http.Error(w, "link expired", http.StatusNotFound)
		return
	}
	q := landing.Query()
	q.Set(SubmitURLParam, h.signer.SubmitURL(campaignID, recipientID))
	landing.RawQuery = q.Encode()

	h.publish(r, domain.EventClicked, campaignID, recipientID)
	http.Redirect(w, r, landing.String(), http.StatusFound)
}

// HandleSubmit records a credential submission. The form body is read and
// discarded; nothing the recipient typed is stored or logged.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	campaignID, recipientID, err := h.signer.Decode(chi.URLParam(r, "data"), chi.URLParam(r, "sig"))
	if err != nil {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}
	io.Copy(io.Discard, io.LimitReader(r.Body, maxSubmitBody))
	r.Body.Close()

	evt := h.event(r, domain.EventSubmitted, campaignID, recipientID)
	h.sink.Publish(r.Context(), evt)
	log.Printf("[tracking.Handler] SUBMIT campaign=%s recipient=%s", campaignID, recipientID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write([]byte(`<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
		<h1>This was a phishing simulation</h1>
		<p>No information you entered was stored. Please review your security awareness training.</p>
	</body></html>`))
}

// HandleReport records that a recipient reported the email as phishing.
// Reports pass the bot filter like opens and clicks, since scanners follow
// every link in a message.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	campaignID, recipientID, err := h.signer.Decode(chi.URLParam(r, "data"), chi.URLParam(r, "sig"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid tracking link")
		return
	}
	h.publish(r, domain.EventReported, campaignID, recipientID)
	httputil.OK(w, map[string]string{
		"message": "Thank you for reporting this email. It was part of a security awareness exercise.",
	})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) publish(r *http.Request, kind domain.EventKind, campaignID, recipientID string) {
	if h.bots != nil && h.bots.IsBot(r.UserAgent()) {
		log.Printf("[tracking.Handler] ignoring %s from automated agent campaign=%s", kind, campaignID)
		return
	}
	h.sink.Publish(r.Context(), h.event(r, kind, campaignID, recipientID))
	log.Printf("[tracking.Handler] %s campaign=%s recipient=%s", strings.ToUpper(string(kind)), campaignID, recipientID)
}

func (h *Handler) event(r *http.Request, kind domain.EventKind, campaignID, recipientID string) TrackingEvent {
	evt := TrackingEvent{
		Kind:        kind,
		CampaignID:  campaignID,
		RecipientID: recipientID,
		IPAddress:   realIP(r),
		UserAgent:   r.UserAgent(),
		Timestamp:   h.now().UTC(),
	}
	if evt.UserAgent != "" {
		evt.DeviceType, evt.OS, evt.Browser = ClassifyUserAgent(evt.UserAgent)
	}
	return evt
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// BotDetector recognizes mail scanners and link prefetchers by user agent.
type BotDetector struct {
	patterns []string
}

func NewBotDetector() *BotDetector {
	return &BotDetector{
		patterns: []string{
			"bot", "crawler", "spider", "slurp", "preview", "proxy", "scanner",
			"safelinks", "barracuda", "mimecast", "proofpoint",
		},
	}
}

func (bd *BotDetector) IsBot(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, p := range bd.patterns {
		if strings.Contains(ua, p) {
			return true
		}
	}
	return false
}
