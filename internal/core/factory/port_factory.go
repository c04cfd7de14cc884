package factory

import (
	"github.com/cyllective/egress0r/internal/config"
	"github.com/cyllective/egress0r/internal/core/check"
	"github.com/cyllective/egress0r/internal/core/check/port"
	"github.com/cyllective/egress0r/internal/core/model"
)

// NewPortCheck 创建端口出网检测
func NewPortCheck(cfg *config.Config, caps model.NetworkCapabilities) (check.Check, error) {
	c := cfg.Port
	return port.New(c.IPv4Addr, c.IPv6Addr, c.Mode, caps,
		port.WithTCP(c.WithTCP, config.Seconds(c.TCPTimeout)),
		port.WithUDP(c.WithUDP, config.Seconds(c.UDPTimeout)),
		port.WithWorkers(c.Workers),
		port.WithRateLimit(c.RateLimit),
	)
}
