/*
 * @author: sun977
 * @date: 2026.02.10
 * @description: 随机文件名与标识符
 */

package utils

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const filenameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomFilename 生成指定长度的随机文件名 (字母+数字)
// extension 可带或不带前导点，例如 ".bin" 或 "bin"
func RandomFilename(length int, extension string) string {
	var sb strings.Builder
	sb.Grow(length + len(extension) + 1)

	max := big.NewInt(int64(len(filenameAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand 在受支持平台上不会失败
			panic(err)
		}
		sb.WriteByte(filenameAlphabet[n.Int64()])
	}

	if ext := strings.TrimPrefix(extension, "."); ext != "" {
		sb.WriteByte('.')
		sb.WriteString(ext)
	}
	return sb.String()
}

// NewIdentifier 生成随机标识符 (UUID v4 字符串)
// 用于 UDP 端口探测的回显校验
func NewIdentifier() string {
	return uuid.NewString()
}
