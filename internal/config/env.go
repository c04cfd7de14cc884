package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// EnvLoader .env 加载器
// @author: sun977
// @date: 2026.02.11
// @description: 在读取配置文件之前加载 .env，一般用来放 SMTP/FTP 凭据，
// 之后由 viper 的 EGRESS0R_ 前缀覆盖到配置中：
//
//	EGRESS0R_SMTP_PASSWORD=...
//	EGRESS0R_FTP_PASSWORD=...
type EnvLoader struct {
	envFiles []string
	loaded   []string
}

// NewEnvLoader 未指定文件时加载当前目录下的 .env
func NewEnvLoader(envFiles ...string) *EnvLoader {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	return &EnvLoader{envFiles: envFiles}
}

// Load 按顺序加载，文件不存在时跳过；已存在的环境变量不会被覆盖
func (e *EnvLoader) Load() error {
	if e.loaded != nil {
		return nil
	}
	loaded := []string{}
	for _, envFile := range e.envFiles {
		if _, err := os.Stat(envFile); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
		loaded = append(loaded, envFile)
	}
	e.loaded = loaded
	return nil
}

// Loaded 实际加载的文件
func (e *EnvLoader) Loaded() []string {
	return e.loaded
}
