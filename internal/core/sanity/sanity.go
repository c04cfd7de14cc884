/**
 * 运行环境检测
 * @author: sun977
 * @date: 2026.02.15
 * @description: 检测本机可用的 IPv4/IPv6 地址，按配置强制开启或关闭地址族，
 *               结果作为只读的 NetworkCapabilities 传给每个检测项。
 */
package sanity

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/sirupsen/logrus"

	"github.com/cyllective/egress0r/internal/config"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/pkg/logger"
)

const (
	StartMessage = "Performing sanity checks..."

	OverrideEnable  = "enable"
	OverrideDisable = "disable"
)

// ErrNoNetwork 两个地址族都不可用
var ErrNoNetwork = errors.New("neither IPv4 nor IPv6 is enabled")

// InterfaceLister 列出本机网卡，测试中替换
type InterfaceLister func(ctx context.Context) (psnet.InterfaceStatList, error)

// Checker 环境检测
type Checker struct {
	lister   InterfaceLister
	override config.OverrideConfig
}

// NewChecker 创建环境检测，lister 为空时使用 gopsutil
func NewChecker(override config.OverrideConfig, lister InterfaceLister) *Checker {
	if lister == nil {
		lister = psnet.InterfacesWithContext
	}
	return &Checker{lister: lister, override: override}
}

// Run 检测地址族并应用手动开关
// 两个地址族都不可用时返回 ErrNoNetwork，消息列表中包含对应的失败消息
func (c *Checker) Run(ctx context.Context) (model.NetworkCapabilities, []model.Message, error) {
	caps, err := c.Detect(ctx)
	if err != nil {
		return caps, []model.Message{model.Negative("Failed to enumerate network interfaces")}, err
	}
	logger.WithFields(logrus.Fields{
		"ipv4": caps.IPv4,
		"ipv6": caps.IPv6,
	}).Debug("detected network capabilities")

	caps, msgs := ApplyOverride(caps, c.override)
	if !caps.Any() {
		msgs = append(msgs, model.Negative("Neither IPv4 nor IPv6 is enabled, aborting..."))
		return caps, msgs, ErrNoNetwork
	}

	msgs = append(msgs,
		model.Info("IPv6 tests %s", enabledWord(caps.IPv6)),
		model.Info("IPv4 tests %s", enabledWord(caps.IPv4)),
	)
	return caps, msgs, nil
}

// Detect 遍历网卡地址
func (c *Checker) Detect(ctx context.Context) (model.NetworkCapabilities, error) {
	stats, err := c.lister(ctx)
	if err != nil {
		return model.NetworkCapabilities{}, fmt.Errorf("failed to list interfaces: %w", err)
	}
	return model.NetworkCapabilities{
		IPv4: HasIPv4(stats),
		IPv6: HasIPv6(stats),
	}, nil
}

// HasIPv4 是否存在非回环 IPv4 地址
func HasIPv4(stats psnet.InterfaceStatList) bool {
	for _, addr := range interfaceAddrs(stats) {
		if addr.Is4() && !addr.IsLoopback() {
			return true
		}
	}
	return false
}

// HasIPv6 是否存在非回环、非链路本地的 IPv6 地址
func HasIPv6(stats psnet.InterfaceStatList) bool {
	for _, addr := range interfaceAddrs(stats) {
		if addr.Is6() && !addr.Is4In6() && !addr.IsLoopback() && !addr.IsLinkLocalUnicast() {
			return true
		}
	}
	return false
}

// interfaceAddrs gopsutil 返回 CIDR 形式的地址，无法解析的忽略
func interfaceAddrs(stats psnet.InterfaceStatList) []netip.Addr {
	var addrs []netip.Addr
	for _, stat := range stats {
		for _, a := range stat.Addrs {
			s := a.Addr
			if prefix, err := netip.ParsePrefix(s); err == nil {
				addrs = append(addrs, prefix.Addr())
				continue
			}
			// 去掉 zone，例如 fe80::1%eth0
			if i := strings.IndexByte(s, '%'); i >= 0 {
				s = s[:i]
			}
			if addr, err := netip.ParseAddr(s); err == nil {
				addrs = append(addrs, addr)
			}
		}
	}
	return addrs
}

// ApplyOverride 应用手动开关
// enable 只在未检测到时生效，disable 只在检测到时生效
func ApplyOverride(caps model.NetworkCapabilities, override config.OverrideConfig) (model.NetworkCapabilities, []model.Message) {
	var msgs []model.Message
	if !caps.IPv4 && override.IPv4 == OverrideEnable {
		msgs = append(msgs, model.Info("Forcefully enabling IPv4 tests"))
		caps.IPv4 = true
	} else if caps.IPv4 && override.IPv4 == OverrideDisable {
		msgs = append(msgs, model.Info("Forcefully disabling IPv4 tests"))
		caps.IPv4 = false
	}

	if !caps.IPv6 && override.IPv6 == OverrideEnable {
		msgs = append(msgs, model.Info("Forcefully enabling IPv6 tests"))
		caps.IPv6 = true
	} else if caps.IPv6 && override.IPv6 == OverrideDisable {
		msgs = append(msgs, model.Info("Forcefully disabling IPv6 tests"))
		caps.IPv6 = false
	}
	return caps, msgs
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
