package factory

import (
	"github.com/cyllective/egress0r/internal/config"
	"github.com/cyllective/egress0r/internal/core/check"
	"github.com/cyllective/egress0r/internal/core/check/dns"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
)

// NewDNSCheck 创建 DNS 检测
// exfil 小节缺少 filename/domain/nameserver 任一项时不做外传
func NewDNSCheck(cfg *config.Config, caps model.NetworkCapabilities) (check.Check, error) {
	c := cfg.DNS
	queries := make([]dns.Query, 0, len(c.Queries))
	for _, q := range c.Queries {
		queries = append(queries, dns.Query{
			Record:          q.Record,
			RecordType:      q.RecordType,
			ExpectedAnswers: q.ExpectedAnswers,
		})
	}

	var opts []dns.Option
	if e := c.Exfil; e != nil && e.Filename != "" && e.Domain != "" && e.Nameserver != "" {
		p, err := payload.NewDNSPayload(cfg.DataDir, e.Filename, e.Domain, e.Nameserver, e.RecordType, e.ChunkSize, e.MaxChunks)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dns.WithExfilPayload(p))
	}
	return dns.New(c.Servers, queries, config.Seconds(c.Timeout), caps, opts...)
}
