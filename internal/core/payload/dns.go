package payload

import (
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"github.com/cyllective/egress0r/internal/core/model"
)

const (
	DefaultDNSChunkSize  = 30
	DefaultDNSMaxChunks  = 30
	DefaultDNSRecordType = "A"

	// DNS 协议限制 (RFC 1035)
	MaxLabelLength = 63
	MaxNameLength  = 253
)

// DNSRecordTypes 外传查询允许使用的记录类型
var DNSRecordTypes = []string{"A", "AAAA", "MX", "TXT"}

// DNSPayload 通过子域名查询外传的载荷，始终以二进制方式读取
type DNSPayload struct {
	*Payload
	Domain     string
	Nameserver string
	RecordType string
}

// NewDNSPayload 创建 DNS 外传载荷
// chunkSize/maxChunks 为 0 时使用默认值 30/30，recordType 为空时使用 A。
// 构建时校验十六进制编码后的标签长度和完整域名长度，超限视为配置错误。
func NewDNSPayload(dataDir, filename, domain, nameserver, recordType string, chunkSize, maxChunks int) (*DNSPayload, error) {
	if chunkSize == 0 {
		chunkSize = DefaultDNSChunkSize
	}
	if maxChunks == 0 {
		maxChunks = DefaultDNSMaxChunks
	}
	if recordType == "" {
		recordType = DefaultDNSRecordType
	}
	recordType = strings.ToUpper(recordType)
	if !slices.Contains(DNSRecordTypes, recordType) {
		return nil, &model.ConfigError{Component: "DNSPayload", Field: "record_type", Value: recordType, Allowed: DNSRecordTypes}
	}

	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if domain == "" {
		return nil, &model.ConfigError{Component: "DNSPayload", Field: "domain", Value: domain, Reason: "must not be empty"}
	}

	base, err := New(dataDir, filename, WithReadMode(ModeBinary), WithChunking(chunkSize, maxChunks))
	if err != nil {
		return nil, err
	}

	p := &DNSPayload{
		Payload:    base,
		Domain:     domain,
		Nameserver: nameserver,
		RecordType: recordType,
	}
	if err := p.validateLengths(); err != nil {
		return nil, err
	}
	return p, nil
}

// validateLengths 校验最长的数据标签与 sof/eof 标记是否符合 DNS 限制
func (p *DNSPayload) validateLengths() error {
	chunkLabel := 2 * p.ChunkSize
	if chunkLabel > MaxLabelLength {
		return &model.ConfigError{
			Component: "DNSPayload",
			Field:     "chunk_size",
			Value:     strconv.Itoa(p.ChunkSize),
			Reason:    "hex encoded chunk exceeds the 63 octet label limit (chunk_size must be <= 31)",
		}
	}
	if n := chunkLabel + 1 + len(p.Domain); n > MaxNameLength {
		return &model.ConfigError{
			Component: "DNSPayload",
			Field:     "domain",
			Value:     p.Domain,
			Reason:    "query name exceeds the 253 octet limit",
		}
	}

	nameLabel := len(p.HexFilename())
	if nameLabel > MaxLabelLength {
		return &model.ConfigError{
			Component: "DNSPayload",
			Field:     "filename",
			Value:     p.Filename,
			Reason:    "hex encoded filename exceeds the 63 octet label limit",
		}
	}
	if n := len("sof.") + nameLabel + 1 + len(p.Domain); n > MaxNameLength {
		return &model.ConfigError{
			Component: "DNSPayload",
			Field:     "domain",
			Value:     p.Domain,
			Reason:    "marker query name exceeds the 253 octet limit",
		}
	}
	return nil
}

// HexFilename 十六进制编码的文件名
func (p *DNSPayload) HexFilename() string {
	return hex.EncodeToString([]byte(p.Filename))
}
