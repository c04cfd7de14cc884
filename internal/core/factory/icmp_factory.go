package factory

import (
	"github.com/cyllective/egress0r/internal/config"
	"github.com/cyllective/egress0r/internal/core/check"
	"github.com/cyllective/egress0r/internal/core/check/icmp"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
)

// NewICMPCheck 创建 ICMP 检测，载荷始终按字节分块
func NewICMPCheck(cfg *config.Config, caps model.NetworkCapabilities) (check.Check, error) {
	c := cfg.ICMP
	opts := []icmp.Option{icmp.WithPrivileged(c.Privileged)}
	if e := c.Exfil; e != nil && e.Filename != "" {
		p, err := payload.New(cfg.DataDir, e.Filename,
			payload.WithReadMode(payload.ModeBinary),
			payload.WithChunking(e.ChunkSize, e.MaxChunks),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, icmp.WithExfilPayload(p))
	}
	return icmp.New(c.TargetHosts, config.Seconds(c.Timeout), caps, opts...)
}
