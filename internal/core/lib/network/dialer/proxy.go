package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// ErrUnsupportedProxy 拨号层只处理 socks5/socks5h，HTTP 代理由 net/http 走 CONNECT
var ErrUnsupportedProxy = errors.New("unsupported proxy scheme")

// ProxyDialer SOCKS5 代理拨号器，socks5h 由代理端解析域名
type ProxyDialer struct {
	ProxyURL *url.URL
	dialer   proxy.ContextDialer
}

// NewProxyDialer 凭据取自 URL，未指定端口时使用 1080
func NewProxyDialer(proxyAddr string, timeout time.Duration) (*ProxyDialer, error) {
	u, err := url.Parse(proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address: %w", err)
	}
	if !isSOCKS(u) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProxy, u.Scheme)
	}

	forward, err := proxy.FromURL(u, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
	}
	cd, ok := forward.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer for %s does not support context", u.Redacted())
	}
	return &ProxyDialer{ProxyURL: u, dialer: cd}, nil
}

func (d *ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s via %s: %w", address, d, err)
	}
	return conn, nil
}

// String 隐藏密码，用于日志
func (d *ProxyDialer) String() string {
	return d.ProxyURL.Redacted()
}

func isSOCKS(u *url.URL) bool {
	return u != nil && (u.Scheme == "socks5" || u.Scheme == "socks5h")
}
