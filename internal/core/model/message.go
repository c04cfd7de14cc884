/**
 * 检测结果消息
 * @author: sun977
 * @date: 2026.02.10
 * @description: 每个探测步骤产生一条 Message，Negative 为失败，其余类型均计为成功。
 */

package model

import (
	"fmt"
	"strings"
	"time"
)

// MessageType 消息类型
// 数值与早期版本的输出保持一致，CSV 导出时直接写入
type MessageType int

const (
	MessageNegative MessageType = 3  // 失败
	MessagePositive MessageType = 6  // 成功
	MessageInfo     MessageType = 98 // 提示信息 (例如目标被跳过)
	MessageUnknown  MessageType = 99 // 已完成但结果不符合预期
)

// TimestampFormat 消息时间戳格式 (UTC, 微秒精度)
const TimestampFormat = "2006-01-02 15:04:05.000000"

func (t MessageType) String() string {
	switch t {
	case MessageNegative:
		return "FAIL"
	case MessagePositive:
		return "SUCCESS"
	case MessageInfo:
		return "INFO"
	case MessageUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// Message 单个测试步骤的结果
// 创建后不可修改，由消费方负责打印/丢弃
type Message struct {
	Text string      `json:"message"`
	Type MessageType `json:"type"`
	When time.Time   `json:"when"`
}

func newMessage(t MessageType, text string) Message {
	return Message{
		Text: text,
		Type: t,
		When: time.Now().UTC(),
	}
}

// Positive 创建成功消息
func Positive(format string, args ...interface{}) Message {
	return newMessage(MessagePositive, fmt.Sprintf(format, args...))
}

// Negative 创建失败消息
func Negative(format string, args ...interface{}) Message {
	return newMessage(MessageNegative, fmt.Sprintf(format, args...))
}

// Unknown 创建未知结果消息
func Unknown(format string, args ...interface{}) Message {
	return newMessage(MessageUnknown, fmt.Sprintf(format, args...))
}

// Info 创建提示消息
func Info(format string, args ...interface{}) Message {
	return newMessage(MessageInfo, fmt.Sprintf(format, args...))
}

// FromStatus 根据布尔状态选择 Positive 或 Negative，文本按原样使用
func FromStatus(ok bool, success, fail string) Message {
	if ok {
		return newMessage(MessagePositive, success)
	}
	return newMessage(MessageNegative, fail)
}

// OK 消息的布尔语义: 只有 Negative 为 false
// 编排器只依赖这个方法统计成功/失败
func (m Message) OK() bool {
	return m.Type != MessageNegative
}

// Indicator 控制台使用的状态符号
func (m Message) Indicator() string {
	switch m.Type {
	case MessagePositive:
		return "✓"
	case MessageNegative:
		return "x"
	case MessageUnknown:
		return "?"
	default:
		return "*"
	}
}

// Format 按缩进输出单行文本: [时间]    [符号] 内容
func (m Message) Format(indent int) string {
	return fmt.Sprintf("%s[%s]    [%s] %s", strings.Repeat(" ", indent), m.When.Format(TimestampFormat), m.Indicator(), m.Text)
}

func (m Message) String() string {
	return fmt.Sprintf("Message(message=%q, type=%s, when=%s)", m.Text, m.Type, m.When.Format(TimestampFormat))
}

// Headers 实现 TabularData 接口
func (m Message) Headers() []string {
	return []string{"Time", "Status", "Message"}
}

// Rows 实现 TabularData 接口
func (m Message) Rows() [][]string {
	return [][]string{{m.When.Format(TimestampFormat), m.Type.String(), m.Text}}
}
