package factory

import (
	"github.com/cyllective/egress0r/internal/config"
	"github.com/cyllective/egress0r/internal/core/check"
	"github.com/cyllective/egress0r/internal/core/check/smtp"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
)

// NewSMTPCheck 创建 SMTP 检测，网络能力不影响 SMTP
func NewSMTPCheck(cfg *config.Config, _ model.NetworkCapabilities) (check.Check, error) {
	c := cfg.SMTP
	mode, err := readMode(c.Exfil.ReadMode, payload.ModeBinary)
	if err != nil {
		return nil, err
	}
	p, err := payload.NewSMTPPayload(cfg.DataDir, c.Exfil.Filename, c.Exfil.ExfilMode, mode)
	if err != nil {
		return nil, err
	}
	return smtp.New(smtp.Settings{
		Host:       c.Host,
		Port:       c.Port,
		Encryption: c.Encryption,
		FromAddr:   c.FromAddr,
		ToAddr:     c.ToAddr,
		Username:   c.Username,
		Password:   c.Password,
		Subject:    c.Subject,
		Message:    c.Message,
		Timeout:    config.Seconds(c.Timeout),
	}, p)
}
