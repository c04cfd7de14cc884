/**
 * SMTP 外传检测
 * @author: sun977
 * @date: 2026.02.14
 * @description: 构建邮件 (正文内嵌或附件) 并通过配置的 SMTP 服务器发送。
 */
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"github.com/cyllective/egress0r/internal/core/lib/network/dialer"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
	"github.com/cyllective/egress0r/internal/pkg/logger"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultPort    = 25
	StartMessage   = "Testing SMTP exfil..."

	EncryptionNone = "none"
	EncryptionTLS  = "tls" // STARTTLS
	EncryptionSSL  = "ssl" // 隐式 TLS
)

// ErrSend 连接、认证或发送失败
var ErrSend = errors.New("smtp send failed")

// Encryptions 支持的加密方式
var Encryptions = []string{EncryptionNone, EncryptionTLS, EncryptionSSL}

// Settings SMTP 连接与邮件参数
type Settings struct {
	Host       string
	Port       int
	Encryption string
	FromAddr   string
	ToAddr     string
	Username   string
	Password   string
	Subject    string
	Message    string
	Timeout    time.Duration
}

// SMTPCheck SMTP 外传检测项
type SMTPCheck struct {
	settings Settings
	exfil    *payload.SMTPPayload
	dialer   *dialer.DefaultDialer
}

// New 创建 SMTP 检测，加密方式非法时返回配置错误
func New(settings Settings, p *payload.SMTPPayload) (*SMTPCheck, error) {
	// 未配置等同于 none
	encryption := strings.ToLower(strings.TrimSpace(settings.Encryption))
	if encryption == "" {
		encryption = EncryptionNone
	}
	if !slices.Contains(Encryptions, encryption) {
		return nil, &model.ConfigError{Component: "SMTPCheck", Field: "encryption", Value: settings.Encryption, Allowed: slices.Clone(Encryptions)}
	}
	settings.Encryption = encryption
	if p == nil {
		return nil, &model.ConfigError{Component: "SMTPCheck", Field: "exfil", Reason: "payload is required"}
	}
	if settings.Port == 0 {
		settings.Port = DefaultPort
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	return &SMTPCheck{
		settings: settings,
		exfil:    p,
		dialer:   dialer.NewDefaultDialer(settings.Timeout),
	}, nil
}

func (c *SMTPCheck) Name() model.CheckName { return model.CheckSMTP }

func (c *SMTPCheck) StartMessage() string { return StartMessage }

// Close 释放载荷文件句柄
func (c *SMTPCheck) Close() error {
	if c.exfil == nil {
		return nil
	}
	return c.exfil.Close()
}

func (c *SMTPCheck) Outcomes(ctx context.Context) iter.Seq[model.Message] {
	return func(yield func(model.Message) bool) {
		ok, err := c.Exfil(ctx)
		if err != nil {
			logger.WithCheck(string(model.CheckSMTP)).WithFields(logrus.Fields{
				"target": c.address(),
				"error":  err,
			}).Debug("smtp exfil failed")
		}

		length, _ := c.exfil.DataLength()
		yield(model.FromStatus(ok, fmt.Sprintf("Exfiltrated %d bytes", length), "Failed to exfiltrate data"))
	}
}

func (c *SMTPCheck) address() string {
	return c.settings.Host + ":" + strconv.Itoa(c.settings.Port)
}

// BuildMessage 构建邮件
// 内嵌模式: 正文 = message + "\r\r" + 载荷文本；附件模式: 载荷作为以文件名命名的二进制附件
func (c *SMTPCheck) BuildMessage() (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(c.settings.FromAddr); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(c.settings.ToAddr); err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}
	m.SetDate()
	if c.settings.Subject != "" {
		m.Subject(c.settings.Subject)
	}

	body := c.settings.Message
	if c.exfil.IsAttachment() {
		data, err := c.exfil.Data()
		if err != nil {
			return nil, err
		}
		if err := m.AttachReader(c.exfil.Filename, bytes.NewReader(data),
			mail.WithFileContentType(mail.TypeAppOctetStream)); err != nil {
			return nil, fmt.Errorf("failed to attach payload: %w", err)
		}
	} else {
		text, err := c.exfil.Text()
		if err != nil {
			return nil, err
		}
		body += "\r\r" + text
	}
	m.SetBodyString(mail.TypeTextPlain, body)
	return m, nil
}

// clientOptions 根据加密方式与凭据构建客户端参数
func (c *SMTPCheck) clientOptions() []mail.Option {
	s := c.settings
	opts := []mail.Option{
		mail.WithPort(s.Port),
		mail.WithTimeout(s.Timeout),
		mail.WithDialContextFunc(c.dialer.DialContext),
		mail.WithTLSConfig(&tls.Config{ServerName: s.Host, InsecureSkipVerify: true}), //nolint:gosec
	}
	switch s.Encryption {
	case EncryptionSSL:
		opts = append(opts, mail.WithSSL())
	case EncryptionTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	// 用户名和密码都配置时才认证
	if s.Username != "" && s.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
			mail.WithUsername(s.Username),
			mail.WithPassword(s.Password),
		)
	}
	return opts
}

// Exfil 构建并发送邮件，连接只在本次发送内有效
func (c *SMTPCheck) Exfil(ctx context.Context) (bool, error) {
	m, err := c.BuildMessage()
	if err != nil {
		return false, err
	}
	client, err := mail.NewClient(c.settings.Host, c.clientOptions()...)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSend, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return false, fmt.Errorf("%w: %v", ErrSend, err)
	}
	return true, nil
}
