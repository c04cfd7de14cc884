package dialer

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Proxies 按目标 scheme 选择代理，键为 http/https
type Proxies map[string]string

// NewHTTPTransport 构建出网检测用的 http.Transport
//
// 证书校验关闭。proxies 为空时直连；
// http/https 使用同一个 socks5 代理时通过 ProxyDialer 拨号，其余情况交给 net/http 的 Proxy 选择。
func NewHTTPTransport(d *DefaultDialer, proxies Proxies) (*http.Transport, error) {
	if d == nil {
		d = NewDefaultDialer(30 * time.Second)
	}
	transport := &http.Transport{
		DialContext:           d.DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		TLSHandshakeTimeout:   d.Timeout,
		ResponseHeaderTimeout: d.Timeout,
		DisableKeepAlives:     true,
	}
	if len(proxies) == 0 {
		return transport, nil
	}

	parsed := make(map[string]*url.URL, len(proxies))
	for scheme, raw := range proxies {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid %s proxy address: %q", scheme, raw)
		}
		parsed[scheme] = u
	}

	if socks, ok := sharedSOCKS(parsed); ok {
		pd, err := NewProxyDialer(socks.String(), d.Timeout)
		if err != nil {
			return nil, err
		}
		transport.DialContext = pd.DialContext
		return transport, nil
	}

	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		return parsed[req.URL.Scheme], nil
	}
	return transport, nil
}

// sharedSOCKS 所有 scheme 是否指向同一个 socks5 代理
func sharedSOCKS(proxies map[string]*url.URL) (*url.URL, bool) {
	var shared *url.URL
	for _, u := range proxies {
		if !isSOCKS(u) {
			return nil, false
		}
		if shared != nil && shared.String() != u.String() {
			return nil, false
		}
		shared = u
	}
	return shared, shared != nil
}

// NewHTTPClient 构建带超时的 http.Client
func NewHTTPClient(timeout time.Duration, proxies Proxies) (*http.Client, error) {
	transport, err := NewHTTPTransport(NewDefaultDialer(timeout), proxies)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}
