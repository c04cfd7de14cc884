package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// redactedValue 导出时替换凭据
const redactedValue = "******"

// Marshal 将生效配置 (默认值 + 配置文件 + 环境变量) 序列化为 YAML
// redact 为 true 时隐藏 SMTP/FTP 密码
func Marshal(cfg *Config, redact bool) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	out := *cfg
	if redact {
		if out.SMTP.Password != "" {
			out.SMTP.Password = redactedValue
		}
		if out.FTP.Password != "" {
			out.FTP.Password = redactedValue
		}
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// SaveConfig 写入配置文件，目录不存在时创建
func SaveConfig(cfg *Config, path string) error {
	data, err := Marshal(cfg, false)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
