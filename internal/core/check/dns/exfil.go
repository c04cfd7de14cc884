package dns

import (
	"context"
	"encoding/hex"
	"iter"

	"github.com/cyllective/egress0r/internal/core/payload"
)

// EncodeQueries 将载荷编码为查询域名序列
//
//	sof.<hex 文件名>.<domain>
//	<hex 块1>.<domain>
//	...
//	eof.<hex 文件名>.<domain>
//
// 读取载荷失败时产出错误并结束。
func EncodeQueries(p *payload.DNSPayload) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		hexName := p.HexFilename()
		if !yield("sof."+hexName+"."+p.Domain, nil) {
			return
		}
		for chunk, err := range p.Chunks(0, 0) {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(hex.EncodeToString(chunk)+"."+p.Domain, nil) {
				return
			}
		}
		yield("eof."+hexName+"."+p.Domain, nil)
	}
}

// Exfil 依次查询编码后的域名，任意一次失败即中止
func (c *DNSCheck) Exfil(ctx context.Context, p *payload.DNSPayload) (bool, error) {
	for name, err := range EncodeQueries(p) {
		if err != nil {
			return false, err
		}
		if _, err := c.resolver.resolve(ctx, p.Nameserver, name, p.RecordType); err != nil {
			return false, err
		}
	}
	return true, nil
}
