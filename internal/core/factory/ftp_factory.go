package factory

import (
	"github.com/cyllective/egress0r/internal/config"
	"github.com/cyllective/egress0r/internal/core/check"
	"github.com/cyllective/egress0r/internal/core/check/ftp"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
)

// NewFTPCheck 创建 FTP 检测
func NewFTPCheck(cfg *config.Config, _ model.NetworkCapabilities) (check.Check, error) {
	c := cfg.FTP
	mode, err := readMode(c.Exfil.ReadMode, payload.ModeBinary)
	if err != nil {
		return nil, err
	}
	p, err := payload.New(cfg.DataDir, c.Exfil.Filename, payload.WithReadMode(mode))
	if err != nil {
		return nil, err
	}
	return ftp.New(c.Host, c.Username, c.Password, c.UploadDir, config.Seconds(c.Timeout), p)
}
