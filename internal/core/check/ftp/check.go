/**
 * FTP 外传检测
 * @author: sun977
 * @date: 2026.02.14
 * @description: 登录 FTP 服务器并以 ASCII 模式上传载荷，服务器返回 226 视为成功。
 */
package ftp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/sirupsen/logrus"

	"github.com/cyllective/egress0r/internal/core/lib/network/dialer"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
	"github.com/cyllective/egress0r/internal/pkg/logger"
	"github.com/cyllective/egress0r/internal/pkg/utils"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultPort     = 21
	DefaultUsername = "anonymous"
	DefaultPassword = "anonymous@"
	StartMessage    = "Testing FTP exfil..."

	remoteNameLength = 120
)

var (
	ErrLogin  = errors.New("ftp login failed")
	ErrUpload = errors.New("ftp upload failed")
)

// FTPCheck FTP 外传检测项
type FTPCheck struct {
	host      string
	username  string
	password  string
	uploadDir string
	timeout   time.Duration
	exfil     *payload.Payload
	dialer    *dialer.DefaultDialer
}

// New 创建 FTP 检测，用户名/密码为空时使用匿名登录
func New(host, username, password, uploadDir string, timeout time.Duration, p *payload.Payload) (*FTPCheck, error) {
	if host == "" {
		return nil, &model.ConfigError{Component: "FTPCheck", Field: "host", Reason: "must not be empty"}
	}
	if p == nil {
		return nil, &model.ConfigError{Component: "FTPCheck", Field: "exfil", Reason: "payload is required"}
	}
	if username == "" {
		username = DefaultUsername
	}
	if password == "" {
		password = DefaultPassword
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FTPCheck{
		host:      host,
		username:  username,
		password:  password,
		uploadDir: uploadDir,
		timeout:   timeout,
		exfil:     p,
		dialer:    dialer.NewDefaultDialer(timeout),
	}, nil
}

func (c *FTPCheck) Name() model.CheckName { return model.CheckFTP }

func (c *FTPCheck) StartMessage() string { return StartMessage }

// Close 释放载荷文件句柄
func (c *FTPCheck) Close() error {
	if c.exfil == nil {
		return nil
	}
	return c.exfil.Close()
}

func (c *FTPCheck) Outcomes(ctx context.Context) iter.Seq[model.Message] {
	return func(yield func(model.Message) bool) {
		ok, err := c.Exfil(ctx)
		if err != nil {
			logger.WithCheck(string(model.CheckFTP)).WithFields(logrus.Fields{
				"target": c.host,
				"error":  err,
			}).Debug("ftp exfil failed")
		}

		if !ok {
			yield(model.Negative("Failed to exfiltrate data to %s", c.host))
			return
		}
		length, _ := c.exfil.DataLength()
		yield(model.Positive("Exfiltrated %d bytes to %s", length, c.host))
	}
}

// Exfil 登录、切换目录并上传载荷
// 上传文件名为随机的 120 位字母数字加 .bin 后缀
func (c *FTPCheck) Exfil(ctx context.Context) (bool, error) {
	data, err := c.exfil.Data()
	if err != nil {
		return false, err
	}

	conn, err := ftp.Dial(utils.WithDefaultPort(c.host, DefaultPort),
		ftp.DialWithTimeout(c.timeout),
		ftp.DialWithShutTimeout(c.timeout),
		ftp.DialWithDialFunc(c.dialer.DialFunc(ctx)),
	)
	if err != nil {
		return false, fmt.Errorf("failed to connect to %s: %w", c.host, err)
	}
	defer conn.Quit()

	if err := conn.Login(c.username, c.password); err != nil {
		return false, fmt.Errorf("%w: %v", ErrLogin, err)
	}
	if c.uploadDir != "" {
		if err := conn.ChangeDir(c.uploadDir); err != nil {
			return false, fmt.Errorf("%w: cwd %s: %v", ErrUpload, c.uploadDir, err)
		}
	}
	// Login 默认切换为二进制模式
	if err := conn.Type(ftp.TransferTypeASCII); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpload, err)
	}

	name := utils.RandomFilename(remoteNameLength, ".bin")
	if err := conn.Stor(name, bytes.NewReader(toNetASCII(data))); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrUpload, name, err)
	}
	return true, nil
}

// toNetASCII ASCII 模式下按行上传，每行以 CRLF 结尾 (LF、CR、CRLF 统一转换，末行补 CRLF)
func toNetASCII(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	out := make([]byte, 0, len(data)+bytes.Count(data, []byte{'\n'})+2)
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\r':
			if i+1 < len(data) && data[i+1] == '\n' {
				i++
			}
			out = append(out, '\r', '\n')
		case '\n':
			out = append(out, '\r', '\n')
		default:
			out = append(out, data[i])
		}
	}
	if !bytes.HasSuffix(out, []byte("\r\n")) {
		out = append(out, '\r', '\n')
	}
	return out
}
