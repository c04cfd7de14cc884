/**
 * 检测项构建
 * @author: sun977
 * @date: 2026.02.15
 * @description: 每个协议一个构建函数，把已校验的配置和本机网络能力转换为 check.Check。
 */
package factory

import (
	"github.com/cyllective/egress0r/internal/config"
	"github.com/cyllective/egress0r/internal/core/check"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
)

// Builder 检测项构建函数，只会返回 *model.ConfigError 类型的错误
type Builder func(cfg *config.Config, caps model.NetworkCapabilities) (check.Check, error)

// Builders 检测项名称到构建函数的映射
func Builders() map[model.CheckName]Builder {
	return map[model.CheckName]Builder{
		model.CheckDNS:  NewDNSCheck,
		model.CheckICMP: NewICMPCheck,
		model.CheckSMTP: NewSMTPCheck,
		model.CheckHTTP: NewHTTPCheck,
		model.CheckFTP:  NewFTPCheck,
		model.CheckPort: NewPortCheck,
	}
}

// readMode 解析配置中的读取模式，为空时使用 fallback
func readMode(s string, fallback payload.ReadMode) (payload.ReadMode, error) {
	if s == "" {
		return fallback, nil
	}
	return payload.ParseReadMode(s)
}
