package factory

import (
	"github.com/cyllective/egress0r/internal/config"
	"github.com/cyllective/egress0r/internal/core/check"
	"github.com/cyllective/egress0r/internal/core/check/httpverb"
	"github.com/cyllective/egress0r/internal/core/lib/network/dialer"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
)

// NewHTTPCheck 创建 HTTP 动词检测
// 载荷默认按文本读取，http 和 https 代理都配置时才启用代理重试
func NewHTTPCheck(cfg *config.Config, _ model.NetworkCapabilities) (check.Check, error) {
	c := cfg.HTTP
	mode, err := readMode(c.Exfil.ReadMode, payload.ModeText)
	if err != nil {
		return nil, err
	}
	p, err := payload.New(cfg.DataDir, c.Exfil.Filename, payload.WithReadMode(mode))
	if err != nil {
		return nil, err
	}

	var proxies dialer.Proxies
	if c.Proxies.Enabled() {
		proxies = dialer.Proxies{"http": c.Proxies.HTTP, "https": c.Proxies.HTTPS}
	}
	return httpverb.New(c.Verbs, c.URLs, p, config.Seconds(c.Timeout), proxies)
}
