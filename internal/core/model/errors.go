package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig 配置错误的哨兵值，所有 ConfigError 都可以用 errors.Is 匹配
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError 构建检测项时发现的配置错误
// 这是唯一会越过检测项边界向上传播的错误类型
type ConfigError struct {
	Component string   // 例如 "PortCheck"
	Field     string   // 例如 "mode"
	Value     string   // 实际取值
	Allowed   []string // 允许取值 (可为空)
	Reason    string   // 额外说明 (可为空)
}

func (e *ConfigError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: invalid %s %q", e.Component, e.Field, e.Value)
	if len(e.Allowed) > 0 {
		fmt.Fprintf(&sb, ", expected one of [%s]", strings.Join(e.Allowed, ", "))
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	return sb.String()
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}
