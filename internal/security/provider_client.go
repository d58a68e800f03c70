// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ProviderGuard は認証プロバイダーへの通信を保護する。
// 設定ミスや改ざんでプロバイダーURLが内部ネットワークを指した場合に備える。
type ProviderGuard struct {
	// AllowPrivate はローカル開発用にプライベートアドレスとhttpを許可する。
	AllowPrivate bool
}

// NewProviderGuard はProviderGuardを生成する。
func NewProviderGuard(allowPrivate bool) *ProviderGuard {
	return &ProviderGuard{AllowPrivate: allowPrivate}
}

// blockedNetworks はプロバイダーURLとして拒否するネットワーク範囲。
// safeurlはDNS解決後のIPもDialerで検証するため、ここでは静的なチェックのみ行う。
// providerPort はプロバイダーへの接続を許可するポート。
const providerPort = 443

var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック
		"127.0.0.0/8",
		// リンクローカル（クラウドメタデータIPを含む）
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// NewHTTPClient はプロバイダー呼び出し用のHTTPクライアントを生成する。
// timeoutが0の場合はクライアント側のタイムアウトを設けない。
// AllowPrivateの場合はループバック上のローカルプロバイダーに接続できるよう通常のクライアントを返す。
func (g *ProviderGuard) NewHTTPClient(timeout time.Duration) *http.Client {
	if g.AllowPrivate {
		return &http.Client{Timeout: timeout}
	}

	builder := safeurl.GetConfigBuilder().
		SetAllowedSchemes("https").
		SetAllowedPorts(providerPort)
	if timeout > 0 {
		builder = builder.SetTimeout(timeout)
	}

	return safeurl.Client(builder.Build()).Client
}

// ValidateURL はプロバイダーURLを事前に検証する。
// httpsとホストを必須とし、IPリテラルやlocalhostの内部アドレスを拒否する。
// NewHTTPClientは443番ポートにしか接続しないため、それ以外のポート指定も拒否する。
func (g *ProviderGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch {
	case scheme == "https":
	case scheme == "http" && g.AllowPrivate:
	default:
		return fmt.Errorf("disallowed scheme: %q", scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if g.AllowPrivate {
		return nil
	}
	if port := parsed.Port(); port != "" && port != strconv.Itoa(providerPort) {
		return fmt.Errorf("disallowed port: %s", port)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
