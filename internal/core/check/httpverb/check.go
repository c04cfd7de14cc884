/**
 * HTTP 方法外传检测
 * @author: sun977
 * @date: 2026.02.13
 * @description: 分别用 GET/POST/PATCH/PUT/DELETE 向回显服务发送载荷，校验服务端回显的内容。
 *               配置了代理时每次尝试再通过代理执行一遍。
 */
package httpverb

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cyllective/egress0r/internal/core/lib/network/dialer"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
	"github.com/cyllective/egress0r/internal/pkg/logger"
	"github.com/cyllective/egress0r/internal/pkg/version"
)

const (
	DefaultTimeout = 5 * time.Second
	StartMessage   = "Performing various HTTP verb specific exfil tests..."
)

// VerbOrder 方法的执行顺序
var VerbOrder = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete}

var verbFuncs = map[string]exfilFunc{
	http.MethodGet:    queryExfil(http.MethodGet),
	http.MethodPost:   postExfil,
	http.MethodPatch:  formExfil(http.MethodPatch),
	http.MethodPut:    formExfil(http.MethodPut),
	http.MethodDelete: queryExfil(http.MethodDelete),
}

// HTTPCheck HTTP 方法外传检测项
type HTTPCheck struct {
	verbs   []string
	urls    []string
	exfil   *payload.Payload
	direct  *http.Client
	proxied *http.Client
}

// New 创建 HTTP 检测，proxies 为空时不做代理尝试
func New(verbs, urls []string, p *payload.Payload, timeout time.Duration, proxies dialer.Proxies) (*HTTPCheck, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if p == nil {
		return nil, &model.ConfigError{Component: "HTTPVerbsCheck", Field: "exfil", Reason: "payload is required"}
	}

	enabled := make([]string, 0, len(verbs))
	for _, v := range verbs {
		v = strings.ToUpper(strings.TrimSpace(v))
		if _, ok := verbFuncs[v]; !ok {
			return nil, &model.ConfigError{Component: "HTTPVerbsCheck", Field: "verbs", Value: v, Allowed: VerbOrder}
		}
		enabled = append(enabled, v)
	}

	direct, err := newClient(timeout, nil)
	if err != nil {
		return nil, err
	}
	c := &HTTPCheck{
		verbs:  enabled,
		urls:   urls,
		exfil:  p,
		direct: direct,
	}
	if len(proxies) > 0 {
		c.proxied, err = newClient(timeout, proxies)
		if err != nil {
			return nil, &model.ConfigError{Component: "HTTPVerbsCheck", Field: "proxies", Reason: err.Error()}
		}
	}
	return c, nil
}

func newClient(timeout time.Duration, proxies dialer.Proxies) (*http.Client, error) {
	client, err := dialer.NewHTTPClient(timeout, proxies)
	if err != nil {
		return nil, err
	}
	client.Transport = userAgentTransport{next: client.Transport}
	return client, nil
}

// userAgentTransport 为所有请求设置统一的 User-Agent
type userAgentTransport struct {
	next http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", version.GetUserAgent())
	return t.next.RoundTrip(req)
}

func (c *HTTPCheck) Name() model.CheckName { return model.CheckHTTP }

func (c *HTTPCheck) StartMessage() string { return StartMessage }

// Close 释放载荷文件句柄
func (c *HTTPCheck) Close() error {
	if c.exfil == nil {
		return nil
	}
	return c.exfil.Close()
}

// Outcomes 按 url -> 方法 的顺序执行，每个方法先直连再走代理
func (c *HTTPCheck) Outcomes(ctx context.Context) iter.Seq[model.Message] {
	return func(yield func(model.Message) bool) {
		for _, base := range c.urls {
			for _, verb := range VerbOrder {
				if !slices.Contains(c.verbs, verb) {
					continue
				}
				target := base + strings.ToLower(verb)

				ok := c.attempt(ctx, c.direct, verb, target)
				if !yield(message(ok, verb, base, false)) {
					return
				}
				if c.proxied == nil {
					continue
				}
				ok = c.attempt(ctx, c.proxied, verb, target)
				if !yield(message(ok, verb, base, true)) {
					return
				}
			}
		}
	}
}

// attempt 执行一次外传，所有错误都视为失败
func (c *HTTPCheck) attempt(ctx context.Context, client *http.Client, verb, target string) bool {
	data, err := c.exfil.Text()
	if err == nil {
		var ok bool
		ok, err = verbFuncs[verb](ctx, client, target, data, c.exfil.Filename)
		if err == nil {
			return ok
		}
	}
	logger.WithCheck(string(model.CheckHTTP)).WithFields(logrus.Fields{
		"target": target,
		"verb":   verb,
		"proxy":  client != c.direct,
		"error":  err,
	}).Debug("http exfil failed")
	return false
}

func message(ok bool, verb, base string, viaProxy bool) model.Message {
	success := fmt.Sprintf("Exfiltrated data to %s using %s", base, verb)
	fail := fmt.Sprintf("Failed to exfiltrate data to %s using %s", base, verb)
	if viaProxy {
		success += " via proxy"
		fail += " via proxy"
	}
	return model.FromStatus(ok, success, fail)
}
