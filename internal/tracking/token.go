package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidToken is returned for tracking links that fail to decode or
// whose signature does not match.
var ErrInvalidToken = errors.New("invalid tracking token")

// Signer builds and verifies the signed per-recipient links embedded in
// simulation emails. A token is base64url("campaignID|recipientID") plus a
// truncated HMAC-SHA256 of the raw data.
type Signer struct {
	key     []byte
	baseURL string
}

// NewSigner creates a signer. baseURL is the public origin of the tracking
// server, e.g. https://t.example.com.
func NewSigner(key, baseURL string) *Signer {
	return &Signer{key: []byte(key), baseURL: strings.TrimRight(baseURL, "/")}
}

// Token returns the data and signature path segments for a recipient.
func (s *Signer) Token(campaignID, recipientID string) (data, sig string) {
	raw := campaignID + "|" + recipientID
	return base64.URLEncoding.EncodeToString([]byte(raw)), s.sign(raw)
}

// PixelURL is the open-tracking image URL.
func (s *Signer) PixelURL(campaignID, recipientID string) string {
	data, sig := s.Token(campaignID, recipientID)
	return fmt.Sprintf("%s/track/open/%s/%s", s.baseURL, data, sig)
}

// ClickURL is the phishing link; it records a click and redirects to the
// campaign's landing page.
func (s *Signer) ClickURL(campaignID, recipientID string) string {
	data, sig := s.Token(campaignID, recipientID)
	return fmt.Sprintf("%s/track/click/%s/%s", s.baseURL, data, sig)
}

// SubmitURL is where the landing page posts its form.
func (s *Signer) SubmitURL(campaignID, recipientID string) string {
	data, sig := s.Token(campaignID, recipientID)
	return fmt.Sprintf("%s/track/submit/%s/%s", s.baseURL, data, sig)
}

// ReportURL lets a recipient report the email as phishing.
func (s *Signer) ReportURL(campaignID, recipientID string) string {
	data, sig := s.Token(campaignID, recipientID)
	return fmt.Sprintf("%s/track/report/%s/%s", s.baseURL, data, sig)
}

// Decode verifies a token and returns the ids it carries.
func (s *Signer) Decode(data, sig string) (campaignID, recipientID string, err error) {
	raw, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	if !hmac.Equal([]byte(s.sign(string(raw))), []byte(sig)) {
		return "", "", ErrInvalidToken
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidToken
	}
	return parts[0], parts[1], nil
}

func (s *Signer) sign(data string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
