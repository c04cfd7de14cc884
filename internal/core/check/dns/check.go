/**
 * DNS 检测
 * @author: sun977
 * @date: 2026.02.12
 * @description: 外部/内部 DNS 服务器解析检测，以及基于子域名查询的数据外传。
 */
package dns

import (
	"context"
	"fmt"
	"iter"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
	"github.com/cyllective/egress0r/internal/pkg/logger"
	"github.com/cyllective/egress0r/internal/pkg/utils"
)

const (
	DefaultTimeout = 5 * time.Second
	StartMessage   = "Performing DNS checks..."
)

// DNSCheck DNS 检测项
type DNSCheck struct {
	queries    []Query
	external   []string
	internal   []string
	caps       model.NetworkCapabilities
	exfil      *payload.DNSPayload
	resolver   *resolver
	resolvConf string
}

// Option DNSCheck 可选项
type Option func(*DNSCheck)

// WithExfilPayload 设置外传载荷，为空时不做外传
func WithExfilPayload(p *payload.DNSPayload) Option {
	return func(c *DNSCheck) {
		c.exfil = p
	}
}

// WithResolvConf 指定系统解析器配置文件
func WithResolvConf(path string) Option {
	return func(c *DNSCheck) {
		c.resolvConf = path
	}
}

// WithExchanger 替换底层查询客户端 (UDP 与 TCP 共用)
func WithExchanger(ex Exchanger) Option {
	return func(c *DNSCheck) {
		c.resolver.udp = ex
		c.resolver.tcp = ex
	}
}

// New 创建 DNS 检测
// servers 为外部 DNS 服务器，内部服务器从 resolv.conf 读取；两者都按本机地址族能力过滤。
func New(servers []string, queries []Query, timeout time.Duration, caps model.NetworkCapabilities, opts ...Option) (*DNSCheck, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	for i, q := range queries {
		q.RecordType = strings.ToUpper(q.RecordType)
		if !slices.Contains(QueryRecordTypes, q.RecordType) {
			return nil, &model.ConfigError{Component: "DNSCheck", Field: "record_type", Value: q.RecordType, Allowed: QueryRecordTypes}
		}
		if strings.TrimSpace(q.Record) == "" {
			return nil, &model.ConfigError{Component: "DNSCheck", Field: "record", Value: q.Record, Reason: "must not be empty"}
		}
		queries[i] = q
	}

	c := &DNSCheck{
		queries:    queries,
		caps:       caps,
		resolver:   newResolver(timeout),
		resolvConf: DefaultResolvConf,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.external = filterNameservers(servers, caps)
	internal, err := ReadInternalNameservers(c.resolvConf)
	if err != nil {
		logger.WithCheck(string(model.CheckDNS)).WithError(err).Warn("failed to read internal nameservers")
	}
	c.internal = filterNameservers(internal, caps)
	return c, nil
}

func (c *DNSCheck) Name() model.CheckName { return model.CheckDNS }

func (c *DNSCheck) StartMessage() string { return StartMessage }

// Close 释放载荷文件句柄
func (c *DNSCheck) Close() error {
	if c.exfil == nil {
		return nil
	}
	return c.exfil.Close()
}

// ExternalServers 过滤后的外部服务器
func (c *DNSCheck) ExternalServers() []string { return c.external }

// InternalServers 过滤后的内部服务器
func (c *DNSCheck) InternalServers() []string { return c.internal }

// Outcomes 先用外部服务器、再用内部服务器执行全部查询，最后尝试外传
func (c *DNSCheck) Outcomes(ctx context.Context) iter.Seq[model.Message] {
	return func(yield func(model.Message) bool) {
		groups := []struct {
			internal bool
			servers  []string
		}{
			{false, c.external},
			{true, c.internal},
		}
		for _, group := range groups {
			for _, q := range c.queries {
				for _, server := range group.servers {
					if !yield(c.perform(ctx, q, server, group.internal)) {
						return
					}
				}
			}
		}

		if c.exfil == nil {
			return
		}
		ok, err := c.Exfil(ctx, c.exfil)
		if err != nil {
			logger.WithCheck(string(model.CheckDNS)).WithFields(logrus.Fields{
				"target": c.exfil.Nameserver,
				"error":  err,
			}).Debug("dns exfil failed")
		}
		yield(model.FromStatus(ok,
			fmt.Sprintf("Exfiltrated %d bytes of data to %s", c.exfil.ChunksTotalLength(), c.exfil.Domain),
			"Failed to exfiltrate data"))
	}
}

// perform 执行单条查询并转换为消息
func (c *DNSCheck) perform(ctx context.Context, q Query, server string, internal bool) model.Message {
	kind := "external"
	if internal {
		kind = "internal"
	}

	answers, err := c.resolver.resolve(ctx, server, q.Record, q.RecordType)
	if err != nil {
		logger.WithCheck(string(model.CheckDNS)).WithFields(logrus.Fields{
			"target": server,
			"error":  err,
		}).Debug("dns query failed")
		return model.Negative("Failed to resolve %s %s with %s DNS %s", q.RecordType, q.Record, kind, server)
	}

	success := fmt.Sprintf("Resolved %s %s with %s DNS %s", q.RecordType, q.Record, kind, server)
	if len(q.ExpectedAnswers) > 0 && !q.AnswerIsExpected(answers) {
		return model.Unknown("%s - BUT the response was not expected", success)
	}
	return model.Positive("%s", success)
}

// filterNameservers 移除本机地址族不支持的服务器，非 IP 字面量保留
func filterNameservers(servers []string, caps model.NetworkCapabilities) []string {
	var out []string
	for _, s := range servers {
		host := s
		if h, _, err := net.SplitHostPort(s); err == nil {
			host = h
		}
		switch {
		case utils.IsIPv4Addr(host) && !caps.IPv4:
			continue
		case utils.IsIPv6Addr(host) && !caps.IPv6:
			continue
		}
		out = append(out, s)
	}
	return out
}
