package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"gitdeploy/internal/domain"
)

const (
	HeaderGitLabEvent     = "X-Gitlab-Event"
	HeaderGitLabToken     = "X-Gitlab-Token"
	HeaderGitLabEventUUID = "X-Gitlab-Event-UUID"
	HeaderGitLabSignature = "X-Gitlab-Signature"
)

// clientIPHeaders are consulted in order before falling back to the
// connection's remote address.
var clientIPHeaders = []string{
	"CF-Connecting-IP",
	"X-Client-IP",
	"X-Forwarded-For",
	"X-Forwarded",
	"X-Cluster-Client-IP",
	"Forwarded-For",
	"Forwarded",
}

type WebhookOptions struct {
	Secret        string
	ValidateIPs   bool
	AllowedRanges []string
}

type WebhookAuthenticator struct {
	secret      []byte
	validateIPs bool
	allowed     []netip.Prefix
}

func NewWebhookAuthenticator(opts WebhookOptions) (*WebhookAuthenticator, error) {
	if opts.Secret == "" {
		return nil, fmt.Errorf("%w: webhook secret is required", domain.ErrConfig)
	}

	allowed := make([]netip.Prefix, 0, len(opts.AllowedRanges))
	for _, r := range opts.AllowedRanges {
		p, err := parseRange(r)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid allowed IP range %q: %v", domain.ErrConfig, r, err)
		}
		allowed = append(allowed, p)
	}

	return &WebhookAuthenticator{
		secret:      []byte(opts.Secret),
		validateIPs: opts.ValidateIPs,
		allowed:     allowed,
	}, nil
}

// IsWebhook reports whether the request carries both GitLab headers.
func IsWebhook(header http.Header) bool {
	return header.Get(HeaderGitLabEvent) != "" && header.Get(HeaderGitLabToken) != ""
}

func (a *WebhookAuthenticator) Validate(req domain.InboundRequest) (*domain.AuthContext, error) {
	if !IsWebhook(req.Header) {
		return nil, fmt.Errorf("%w: not a GitLab webhook request", domain.ErrValidation)
	}

	token := req.Header.Get(HeaderGitLabToken)
	if subtle.ConstantTimeCompare([]byte(token), a.secret) != 1 {
		return nil, fmt.Errorf("%w: invalid GitLab webhook token", domain.ErrForbidden)
	}

	if a.validateIPs {
		ip, ok := ClientIP(req)
		if !ok || !a.ipAllowed(ip) {
			return nil, fmt.Errorf("%w: request not from authorized GitLab IP", domain.ErrForbidden)
		}
	}

	if !a.validSignature(req) {
		return nil, fmt.Errorf("%w: invalid GitLab webhook signature", domain.ErrForbidden)
	}

	return &domain.AuthContext{
		Method:    domain.AuthWebhook,
		Event:     req.Header.Get(HeaderGitLabEvent),
		EventUUID: req.Header.Get(HeaderGitLabEventUUID),
	}, nil
}

// validSignature accepts requests without a signature header.
func (a *WebhookAuthenticator) validSignature(req domain.InboundRequest) bool {
	provided := strings.TrimSpace(req.Header.Get(HeaderGitLabSignature))
	if provided == "" {
		return true
	}
	provided = strings.TrimPrefix(provided, "sha256=")

	mac := hmac.New(sha256.New, a.secret)
	mac.Write(req.Body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected))
}

func (a *WebhookAuthenticator) ipAllowed(ip netip.Addr) bool {
	ip = ip.Unmap()
	for _, p := range a.allowed {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP picks the first public address from the proxy headers, then
// the remote address of the connection.
func ClientIP(req domain.InboundRequest) (netip.Addr, bool) {
	for _, h := range clientIPHeaders {
		value := strings.TrimSpace(req.Header.Get(h))
		if value == "" {
			continue
		}

		first, _, _ := strings.Cut(value, ",")
		first = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(first), "for="))

		addr, err := netip.ParseAddr(strings.Trim(first, `"[]`))
		if err != nil {
			continue
		}
		if isPublic(addr) {
			return addr, true
		}
	}

	host := req.RemoteAddr
	if h, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		host = h
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

func isPublic(addr netip.Addr) bool {
	return addr.IsGlobalUnicast() && !addr.IsPrivate()
}

func parseRange(r string) (netip.Prefix, error) {
	r = strings.TrimSpace(r)
	if strings.Contains(r, "/") {
		p, err := netip.ParsePrefix(r)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}

	addr, err := netip.ParseAddr(r)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
