/**
 * 出网端口检测
 * @author: sun977
 * @date: 2026.02.13
 * @description: 对回显服务器的 TCP/UDP 端口逐个探测，结果按端口输入顺序输出。
 */
package port

import (
	"context"
	"iter"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cyllective/egress0r/internal/core/lib/network/qos"
	"github.com/cyllective/egress0r/internal/core/lib/pool"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/pkg/logger"
	"github.com/cyllective/egress0r/internal/pkg/utils"
)

const (
	DefaultTCPTimeout = 6 * time.Second
	DefaultUDPTimeout = 6 * time.Second
	DefaultMode       = ModeTop10
	StartMessage      = "Performing egress port checks..."
)

// Result 单个端口的探测结果
type Result struct {
	Port      int
	Reachable bool
}

// PortCheck 端口检测项
type PortCheck struct {
	ipv4Addr   string
	ipv6Addr   string
	mode       string
	withTCP    bool
	withUDP    bool
	tcpTimeout time.Duration
	udpTimeout time.Duration
	caps       model.NetworkCapabilities
	workers    int
	limiter    *qos.RateLimiter
	identifier string

	tcpProbe ProbeFunc
	udpProbe ProbeFunc
}

// Option PortCheck 可选项
type Option func(*PortCheck)

// WithTCP TCP 探测开关与超时
func WithTCP(enabled bool, timeout time.Duration) Option {
	return func(c *PortCheck) {
		c.withTCP = enabled
		if timeout > 0 {
			c.tcpTimeout = timeout
		}
	}
}

// WithUDP UDP 探测开关与超时
func WithUDP(enabled bool, timeout time.Duration) Option {
	return func(c *PortCheck) {
		c.withUDP = enabled
		if timeout > 0 {
			c.udpTimeout = timeout
		}
	}
}

// WithWorkers 并发数，<= 0 使用 CPU 核数
func WithWorkers(n int) Option {
	return func(c *PortCheck) {
		c.workers = n
	}
}

// WithRateLimit 每秒探测次数，<= 0 不限速
func WithRateLimit(perSecond float64) Option {
	return func(c *PortCheck) {
		c.limiter = qos.NewRateLimiter(perSecond)
	}
}

// WithProbes 替换 TCP/UDP 探测函数，nil 表示保留默认实现
func WithProbes(tcp, udp ProbeFunc) Option {
	return func(c *PortCheck) {
		if tcp != nil {
			c.tcpProbe = tcp
		}
		if udp != nil {
			c.udpProbe = udp
		}
	}
}

// New 创建端口检测，mode 非法时返回配置错误
func New(ipv4Addr, ipv6Addr, mode string, caps model.NetworkCapabilities, opts ...Option) (*PortCheck, error) {
	if mode == "" {
		mode = DefaultMode
	}
	c := &PortCheck{
		ipv4Addr:   ipv4Addr,
		ipv6Addr:   ipv6Addr,
		withTCP:    true,
		withUDP:    true,
		tcpTimeout: DefaultTCPTimeout,
		udpTimeout: DefaultUDPTimeout,
		caps:       caps,
		limiter:    qos.NewRateLimiter(0),
		identifier: utils.NewIdentifier(),
	}
	if err := c.SetMode(mode); err != nil {
		return nil, err
	}
	if ipv4Addr != "" && !utils.IsIPv4Addr(ipv4Addr) {
		return nil, &model.ConfigError{Component: "PortCheck", Field: "ipv4_addr", Value: ipv4Addr, Reason: "not an IPv4 address"}
	}
	if ipv6Addr != "" && !utils.IsIPv6Addr(ipv6Addr) {
		return nil, &model.ConfigError{Component: "PortCheck", Field: "ipv6_addr", Value: ipv6Addr, Reason: "not an IPv6 address"}
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.tcpProbe == nil {
		c.tcpProbe = TCPProbe(c.tcpTimeout)
	}
	if c.udpProbe == nil {
		c.udpProbe = UDPProbe(c.udpTimeout, c.identifier)
	}
	return c, nil
}

// Mode 当前端口选择模式
func (c *PortCheck) Mode() string { return c.mode }

// SetMode 设置端口选择模式，非法值不会修改当前模式
func (c *PortCheck) SetMode(mode string) error {
	if !slices.Contains(ValidModes, mode) {
		return &model.ConfigError{Component: "PortCheck", Field: "mode", Value: mode, Allowed: ValidModes}
	}
	c.mode = mode
	return nil
}

// Identifier UDP 探测使用的标识符，每个检测实例一个
func (c *PortCheck) Identifier() string { return c.identifier }

func (c *PortCheck) Name() model.CheckName { return model.CheckPort }

func (c *PortCheck) StartMessage() string { return StartMessage }

// Outcomes 依次执行 tcp/v4、tcp/v6、udp/v4、udp/v6 四轮扫描
func (c *PortCheck) Outcomes(ctx context.Context) iter.Seq[model.Message] {
	return func(yield func(model.Message) bool) {
		ports := PortsForMode(c.mode)

		type sweep struct {
			enabled bool
			proto   string
			host    string
			probe   ProbeFunc
		}
		sweeps := []sweep{
			{c.withTCP && c.caps.IPv4, "tcp", c.ipv4Addr, c.tcpProbe},
			{c.withTCP && c.caps.IPv6, "tcp", c.ipv6Addr, c.tcpProbe},
			{c.withUDP && c.caps.IPv4, "udp", c.ipv4Addr, c.udpProbe},
			{c.withUDP && c.caps.IPv6, "udp", c.ipv6Addr, c.udpProbe},
		}

		for _, s := range sweeps {
			if !s.enabled || s.host == "" {
				continue
			}
			for r := range c.Sweep(ctx, ports, s.proto, s.host, s.probe) {
				if r.Reachable {
					if !yield(model.Positive("Connected via %d/%s to %s", r.Port, s.proto, s.host)) {
						return
					}
					continue
				}
				if !yield(model.Negative("Failed to connect via %d/%s to %s", r.Port, s.proto, s.host)) {
					return
				}
			}
		}
	}
}

// Sweep 用一个独立的协程池探测全部端口，结果顺序与 ports 一致
func (c *PortCheck) Sweep(ctx context.Context, ports []int, proto, host string, probe ProbeFunc) iter.Seq[Result] {
	log := logger.WithCheck(string(model.CheckPort)).WithFields(logrus.Fields{
		"target":   host,
		"protocol": proto,
	})

	return func(yield func(Result) bool) {
		results := pool.Ordered(ctx, c.workers, ports, func(ctx context.Context, port int) Result {
			if err := c.limiter.Wait(ctx); err != nil {
				return Result{Port: port}
			}
			ok, err := probe(ctx, host, port)
			if err != nil {
				log.WithField("port", port).WithError(err).Debug("port probe failed")
			}
			return Result{Port: port, Reachable: ok && err == nil}
		})
		for _, r := range results {
			if !yield(r) {
				return
			}
		}
	}
}
