package payload

import (
	"slices"

	"github.com/cyllective/egress0r/internal/core/model"
)

const (
	ExfilInline     = "inline"     // 载荷文本拼接到正文
	ExfilAttachment = "attachment" // 载荷作为二进制附件
)

// SMTPExfilModes 允许的外传方式
var SMTPExfilModes = []string{ExfilInline, ExfilAttachment}

// SMTPPayload 通过邮件外传的载荷
type SMTPPayload struct {
	*Payload
	ExfilMode string
}

// NewSMTPPayload 创建邮件外传载荷，exfilMode 为空时为 inline
// attachment 模式强制二进制读取
func NewSMTPPayload(dataDir, filename, exfilMode string, mode ReadMode) (*SMTPPayload, error) {
	if exfilMode == "" {
		exfilMode = ExfilInline
	}
	if !slices.Contains(SMTPExfilModes, exfilMode) {
		return nil, &model.ConfigError{Component: "SMTPPayload", Field: "exfil_mode", Value: exfilMode, Allowed: SMTPExfilModes}
	}
	if exfilMode == ExfilAttachment {
		mode = ModeBinary
	}

	base, err := New(dataDir, filename, WithReadMode(mode))
	if err != nil {
		return nil, err
	}
	return &SMTPPayload{Payload: base, ExfilMode: exfilMode}, nil
}

// IsAttachment 是否以附件方式外传
func (p *SMTPPayload) IsAttachment() bool {
	return p.ExfilMode == ExfilAttachment
}
