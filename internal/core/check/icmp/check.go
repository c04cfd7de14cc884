package icmp

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
	"net/netip"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
	"github.com/cyllective/egress0r/internal/pkg/logger"
)

const (
	DefaultTimeout = 5 * time.Second
	StartMessage   = "Performing ICMP related checks..."

	maxIdentifier = 32767
)

// ICMPCheck ICMP 回显与外传检测
type ICMPCheck struct {
	targets []string
	timeout time.Duration
	caps    model.NetworkCapabilities
	exfil   *payload.Payload
	pinger  Pinger
	newID   func() int
}

// Option ICMPCheck 可选项
type Option func(*ICMPCheck)

// WithPinger 替换底层 Pinger
func WithPinger(p Pinger) Option {
	return func(c *ICMPCheck) {
		c.pinger = p
	}
}

// WithExfilPayload 设置外传载荷
func WithExfilPayload(p *payload.Payload) Option {
	return func(c *ICMPCheck) {
		c.exfil = p
	}
}

// WithPrivileged 原始套接字或非特权数据报套接字
func WithPrivileged(privileged bool) Option {
	return func(c *ICMPCheck) {
		c.pinger = NewSocketPinger(privileged)
	}
}

func New(targets []string, timeout time.Duration, caps model.NetworkCapabilities, opts ...Option) (*ICMPCheck, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &ICMPCheck{
		targets: targets,
		timeout: timeout,
		caps:    caps,
		pinger:  NewSocketPinger(true),
		newID:   randomIdentifier,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// randomIdentifier 1..32767 之间的随机标识符
func randomIdentifier() int {
	return rand.IntN(maxIdentifier) + 1
}

func (c *ICMPCheck) Name() model.CheckName { return model.CheckICMP }

func (c *ICMPCheck) StartMessage() string { return StartMessage }

// Close 释放载荷文件句柄
func (c *ICMPCheck) Close() error {
	if c.exfil == nil {
		return nil
	}
	return c.exfil.Close()
}

func (c *ICMPCheck) Outcomes(ctx context.Context) iter.Seq[model.Message] {
	return func(yield func(model.Message) bool) {
		for _, target := range c.targets {
			addr, err := netip.ParseAddr(strings.TrimSpace(target))
			if err != nil {
				if !yield(model.Info("Skipped target '%s' because it's not an IP", target)) {
					return
				}
				continue
			}
			if (addr.Is4() && !c.caps.IPv4) || (addr.Is6() && !c.caps.IPv6) {
				continue
			}

			ok, err := c.Ping(ctx, addr)
			c.logFailure(target, "ping", err)
			if !yield(model.FromStatus(ok,
				fmt.Sprintf("Received echo response from %s", target),
				fmt.Sprintf("No echo response from %s", target))) {
				return
			}

			if c.exfil == nil {
				continue
			}
			ok, err = c.Exfil(ctx, addr, c.exfil)
			c.logFailure(target, "exfil", err)
			if !yield(model.FromStatus(ok,
				fmt.Sprintf("Exfiltrated %d bytes to %s", c.exfil.ChunksTotalLength(), target),
				fmt.Sprintf("Failed to exfiltrate data to %s", target))) {
				return
			}
		}
	}
}

// Ping 发送一个回显请求，应答携带相同标识符时成功
func (c *ICMPCheck) Ping(ctx context.Context, target netip.Addr) (bool, error) {
	id := c.newID()
	reply, err := c.pinger.Ping(ctx, target, id, 1, nil, c.timeout)
	if err != nil {
		return false, err
	}
	if reply.ID != id {
		return false, fmt.Errorf("%w: identifier mismatch %d != %d", ErrNoReply, reply.ID, id)
	}
	return true, nil
}

// Exfil 每个数据块一个回显请求，应答数据必须包含原始数据块
func (c *ICMPCheck) Exfil(ctx context.Context, target netip.Addr, p *payload.Payload) (bool, error) {
	seq := 0
	for chunk, err := range p.Chunks(0, 0) {
		if err != nil {
			return false, err
		}
		seq++
		reply, err := c.pinger.Ping(ctx, target, c.newID(), seq, chunk, c.timeout)
		if err != nil {
			return false, err
		}
		if !bytes.Contains(reply.Data, chunk) {
			return false, fmt.Errorf("%w: chunk %d not echoed by %s", ErrNoReply, seq, target)
		}
	}
	return true, nil
}

func (c *ICMPCheck) logFailure(target, step string, err error) {
	if err == nil {
		return
	}
	logger.WithCheck(string(model.CheckICMP)).WithFields(logrus.Fields{
		"target": target,
		"step":   step,
		"error":  err,
	}).Debug("icmp probe failed")
}
