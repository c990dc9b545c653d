// Package security は外向き通信の保護とユーザー入力の無害化を提供する。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService はStravaやGoogleなど外部APIへ出るHTTPクライアントを組み立てる。
type SSRFGuardService interface {
	// NewSafeClient は接続時に解決後IPを検証するHTTPクライアントを返す。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はDNS解決を行わずにURLのスキームとホストを検証する。
	ValidateURL(rawURL string) error

	// OutboundClient はbaseURLsが全て公開ホストならNewSafeClientを返す。
	// ローカルのスタブ等を指す場合は保護なしのクライアントとfalseを返す。
	OutboundClient(timeout time.Duration, baseURLs ...string) (*http.Client, bool)
}

var (
	allowedSchemes = []string{"http", "https"}

	// blockedPrefixes はRFC 1918、ループバック、リンクローカル（メタデータIPを含む）、
	// カレントネットワーク、IPv6ユニークローカル。
	blockedPrefixes = []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.0/12"),
		netip.MustParsePrefix("192.168.0.0/16"),
		netip.MustParsePrefix("127.0.0.0/8"),
		netip.MustParsePrefix("169.254.0.0/16"),
		netip.MustParsePrefix("0.0.0.0/8"),
		netip.MustParsePrefix("::1/128"),
		netip.MustParsePrefix("fe80::/10"),
		netip.MustParsePrefix("fc00::/7"),
	}

	blockedHostnames = []string{"localhost"}

	errEmptyURL = errors.New("empty URL")
)

type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient はsafeurlのクライアントを返す。
// 許可するのはhttp/httpsと80/443番ポートのみで、プライベート宛ての接続は
// DialerのControlフックで拒否されるためDNS再バインディングも防げる。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

func (g *ssrfGuard) OutboundClient(timeout time.Duration, baseURLs ...string) (*http.Client, bool) {
	for _, u := range baseURLs {
		if err := g.ValidateURL(u); err != nil {
			return &http.Client{Timeout: timeout}, false
		}
	}
	return g.NewSafeClient(timeout), true
}

// ValidateURL は起動時にSTRAVA_OAUTH_URLとSTRAVA_API_URLを事前チェックする。
// 解決後IPの検証はNewSafeClient側が担う。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return errEmptyURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !slices.Contains(allowedSchemes, scheme) {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("blocked IP address: %s", addr)
		}
		return nil
	}

	if slices.Contains(blockedHostnames, strings.ToLower(host)) {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.WithZone("").Unmap()
	return slices.ContainsFunc(blockedPrefixes, func(p netip.Prefix) bool {
		return p.Contains(addr)
	})
}
