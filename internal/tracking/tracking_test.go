package tracking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/service/campaign"
	"github.com/ignite/phishsim/internal/service/engagement"
)

type recordingSink struct {
	mu     sync.Mutex
	events []TrackingEvent
}

func (s *recordingSink) Publish(_ context.Context, evt TrackingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

type campaignMap map[string]*domain.Campaign

func (m campaignMap) Get(_ context.Context, id string) (*domain.Campaign, error) {
	if c, ok := m[id]; ok {
		return c, nil
	}
	return nil, campaign.ErrNotFound
}

func newTestHandler() (*Handler, *Signer, *recordingSink) {
	signer := NewSigner("test-key", "https://t.example/")
	sink := &recordingSink{}
	h := NewHandler(signer, sink, campaignMap{
		"c1": {ID: "c1", DeliveryTargetURL: "https://landing.example/login?lang=en"},
	})
	h.now = func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) }
	return h, signer, sink
}

func pathOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Path
}

func TestSigner_RoundTripAndTamper(t *testing.T) {
	s := NewSigner("k", "https://t.example")
	data, sig := s.Token("c1", "r1")

	cid, rid, err := s.Decode(data, sig)
	require.NoError(t, err)
	assert.Equal(t, "c1", cid)
	assert.Equal(t, "r1", rid)

	forged, _ := s.Token("c1", "r2")
	_, _, err = s.Decode(forged, sig)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = NewSigner("other", "").Decode(data, sig)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = s.Decode("%%%", sig)
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.True(t, strings.HasPrefix(s.PixelURL("c1", "r1"), "https://t.example/track/open/"))
}

func TestHandleOpen(t *testing.T) {
	h, signer, sink := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, pathOf(t, signer.PixelURL("c1", "r1")), nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, pixelGIF, rec.Body.Bytes())
	require.Len(t, sink.events, 1)
	assert.Equal(t, domain.EventOpened, sink.events[0].Kind)
	assert.Equal(t, "r1", sink.events[0].RecipientID)
	assert.Equal(t, "203.0.113.9", sink.events[0].IPAddress)
}

func TestHandleOpen_ClassifiesClient(t *testing.T) {
	h, signer, sink := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, pathOf(t, signer.PixelURL("c1", "r1")), nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1")
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	require.Len(t, sink.events, 1)
	c := sink.events[0].Client()
	assert.Equal(t, "Mobile", c.DeviceType)
	assert.Equal(t, "iOS", c.OS)
	assert.Equal(t, "Safari", c.Browser)
}

func TestHandleOpen_BadSignatureStillServesPixel(t *testing.T) {
	h, signer, sink := newTestHandler()
	data, _ := signer.Token("c1", "r1")
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/track/open/"+data+"/0000000000000000", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sink.events)
}

func TestHandleClick_RedirectsToLanding(t *testing.T) {
	h, signer, sink := newTestHandler()
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, pathOf(t, signer.ClickURL("c1", "r1")), nil))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "landing.example", loc.Host)
	assert.Equal(t, "en", loc.Query().Get("lang"))
	assert.Equal(t, signer.SubmitURL("c1", "r1"), loc.Query().Get(SubmitURLParam))

	require.Len(t, sink.events, 1)
	assert.Equal(t, domain.EventClicked, sink.events[0].Kind)
}

func TestHandleClick_UnknownCampaign(t *testing.T) {
	h, signer, sink := newTestHandler()
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, pathOf(t, signer.ClickURL("gone", "r1")), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, sink.events)
}

func TestHandleClick_BotFilter(t *testing.T) {
	h, signer, sink := newTestHandler()
	h.SetBotFilter(NewBotDetector())
	req := httptest.NewRequest(http.MethodGet, pathOf(t, signer.ClickURL("c1", "r1")), nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Proofpoint URL Defense)")
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Empty(t, sink.events)
}

func TestHandleSubmit_DiscardsBody(t *testing.T) {
	h, signer, sink := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, pathOf(t, signer.SubmitURL("c1", "r1")),
		strings.NewReader("username=alice&password=hunter2"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "phishing simulation")
	assert.NotContains(t, rec.Body.String(), "hunter2")
	require.Len(t, sink.events, 1)
	assert.Equal(t, domain.EventSubmitted, sink.events[0].Kind)
}

func TestHandleReport(t *testing.T) {
	h, signer, sink := newTestHandler()
	report := signer.ReportURL("c1", "r1")
	assert.True(t, strings.HasPrefix(report, "https://t.example/track/report/"))

	for _, method := range []string{http.MethodPost, http.MethodGet} {
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, httptest.NewRequest(method, pathOf(t, report), nil))
		assert.Equal(t, http.StatusOK, rec.Code, method)
		assert.Contains(t, rec.Body.String(), "Thank you for reporting")
	}

	require.Len(t, sink.events, 2)
	assert.Equal(t, domain.EventReported, sink.events[0].Kind)
	assert.Equal(t, "r1", sink.events[0].RecipientID)
}

func TestHandleReport_RejectsForgedLinkAndScanners(t *testing.T) {
	h, signer, sink := newTestHandler()
	h.SetBotFilter(NewBotDetector())
	data, _ := signer.Token("c1", "r1")

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/track/report/"+data+"/0000000000000000", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, pathOf(t, signer.ReportURL("c1", "r1")), nil)
	req.Header.Set("User-Agent", "Mimecast URL scanner")
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, sink.events)
}

func TestClassifyUserAgent(t *testing.T) {
	tests := []struct {
		name, ua            string
		device, os, browser string
	}{
		{"edge on windows", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36 Edg/124.0", "Desktop", "Windows 10/11", "Microsoft Edge"},
		{"chrome on mac", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36", "Desktop", "macOS", "Chrome"},
		{"firefox on linux", "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0", "Desktop", "Linux", "Firefox"},
		{"chrome on android", "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Mobile Safari/537.36", "Mobile", "Android", "Chrome"},
		{"safari on ipad", "Mozilla/5.0 (iPad; CPU OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/604.1", "Tablet", "iOS", "Safari"},
		{"outlook desktop", "Microsoft Office/16.0 (Windows NT 6.1; Microsoft Outlook 16.0)", "Desktop", "Windows 7", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, os, browser := ClassifyUserAgent(tt.ua)
			assert.Equal(t, tt.device, device)
			assert.Equal(t, tt.os, os)
			assert.Equal(t, tt.browser, browser)
		})
	}
}

// =============================================================================
// QUEUE
// =============================================================================

type fakeSQS struct {
	mu       sync.Mutex
	sent     []string
	inbox    []types.Message
	deleted  []string
	received chan struct{}
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	if f.received != nil {
		f.received <- struct{}{}
	}
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &sqs.ReceiveMessageOutput{Messages: f.inbox}
	f.inbox = nil
	return out, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type scriptedRecorder struct {
	errs    map[string]error
	calls   []string
	clients []domain.ClientInfo
}

func (r *scriptedRecorder) RecordObserved(_ context.Context, _, recipientID string, kind domain.EventKind, _ time.Time, client domain.ClientInfo) ([]domain.EventKind, error) {
	r.calls = append(r.calls, recipientID)
	r.clients = append(r.clients, client)
	if err := r.errs[recipientID]; err != nil {
		return nil, err
	}
	return []domain.EventKind{kind}, nil
}

func TestPublisher_SendsJSON(t *testing.T) {
	q := &fakeSQS{received: make(chan struct{}, 1)}
	NewPublisher(q, "https://sqs.example/q").Publish(context.Background(), TrackingEvent{
		Kind: domain.EventOpened, CampaignID: "c1", RecipientID: "r1",
	})

	select {
	case <-q.received:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not published")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	require.Len(t, q.sent, 1)
	assert.Contains(t, q.sent[0], `"kind":"opened"`)
}

func TestConsumer_DeletesPermanentFailuresKeepsTransient(t *testing.T) {
	body := func(rid string) *string {
		s := `{"kind":"clicked","campaign_id":"c1","recipient_id":"` + rid + `","timestamp":"2026-02-01T12:00:00Z"}`
		return &s
	}
	q := &fakeSQS{inbox: []types.Message{
		{Body: body("ok"), ReceiptHandle: aws.String("h-ok")},
		{Body: body("stranger"), ReceiptHandle: aws.String("h-stranger")},
		{Body: body("flaky"), ReceiptHandle: aws.String("h-flaky")},
		{Body: aws.String("not json"), ReceiptHandle: aws.String("h-bad")},
	}}
	rec := &scriptedRecorder{errs: map[string]error{
		"stranger": engagement.ErrUnknownTarget,
		"flaky":    errors.New("connection reset"),
	}}

	c := NewConsumer(q, "https://sqs.example/q", rec)
	require.NoError(t, c.receiveOnce(context.Background()))

	assert.Equal(t, []string{"ok", "stranger", "flaky"}, rec.calls)
	assert.ElementsMatch(t, []string{"h-ok", "h-stranger", "h-bad"}, q.deleted)
}

func TestDirectSink(t *testing.T) {
	rec := &scriptedRecorder{}
	NewDirectSink(rec).Publish(context.Background(), TrackingEvent{
		Kind: domain.EventOpened, CampaignID: "c1", RecipientID: "r9",
		IPAddress: "203.0.113.9", UserAgent: "Mozilla/5.0", Browser: "Firefox",
	})
	assert.Equal(t, []string{"r9"}, rec.calls)
	assert.Equal(t, []domain.ClientInfo{{IPAddress: "203.0.113.9", UserAgent: "Mozilla/5.0", Browser: "Firefox"}}, rec.clients)
}

func TestConsumer_PassesClientInfo(t *testing.T) {
	body := `{"kind":"reported","campaign_id":"c1","recipient_id":"r1","ip_address":"198.51.100.4",` +
		`"user_agent":"ua","device_type":"Mobile","os":"iOS","browser":"Safari","timestamp":"2026-02-01T12:00:00Z"}`
	q := &fakeSQS{inbox: []types.Message{{Body: &body, ReceiptHandle: aws.String("h")}}}
	rec := &scriptedRecorder{}

	require.NoError(t, NewConsumer(q, "https://sqs.example/q", rec).receiveOnce(context.Background()))

	require.Len(t, rec.clients, 1)
	assert.Equal(t, domain.ClientInfo{IPAddress: "198.51.100.4", UserAgent: "ua", DeviceType: "Mobile", OS: "iOS", Browser: "Safari"}, rec.clients[0])
}
