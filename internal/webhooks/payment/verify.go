package paymentwebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
)

const SignatureHeader = "X-Signature"

// Verifier authenticates the caller before any payload parsing happens.
type Verifier struct {
	secret     string
	allowedIPs map[string]struct{}
}

func NewVerifier(secret string, allowedIPs []string) *Verifier {
	allowed := make(map[string]struct{}, len(allowedIPs))
	for _, ip := range allowedIPs {
		if trimmed := strings.TrimSpace(ip); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}
	return &Verifier{secret: secret, allowedIPs: allowed}
}

// CheckSource enforces the IP allow-list when one is configured.
func (v *Verifier) CheckSource(r *http.Request) error {
	if v.secret == "" && len(v.allowedIPs) == 0 {
		return pkgerrors.New(pkgerrors.CodeForbidden, "webhook verification not configured")
	}
	if len(v.allowedIPs) == 0 {
		return nil
	}
	if _, ok := v.allowedIPs[clientIP(r)]; !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "webhook source not allowed")
	}
	return nil
}

// CheckSignature validates the hex HMAC-SHA256 of the raw body when a
// secret is configured.
func (v *Verifier) CheckSignature(r *http.Request, body []byte) error {
	if v.secret == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get(SignatureHeader))
	if header == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing")
	}
	if !hmac.Equal([]byte(Sign(v.secret, body)), []byte(strings.ToLower(header))) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return nil
}

// Sign returns the signature a provider would send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
