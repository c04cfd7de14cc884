package utils

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// IsIPv4Addr 判断字符串是否为合法的 IPv4 地址字面量
func IsIPv4Addr(addr string) bool {
	ip, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	return ip.Is4()
}

// IsIPv6Addr 判断字符串是否为合法的 IPv6 地址字面量
// IPv4-mapped IPv6 (::ffff:192.0.2.1) 视为 IPv6
func IsIPv6Addr(addr string) bool {
	ip, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	return ip.Is6()
}

// IsIPAddr 是否为 IPv4 或 IPv6 地址
func IsIPAddr(addr string) bool {
	return IsIPv4Addr(addr) || IsIPv6Addr(addr)
}

// defaultPorts 各协议默认端口，URL 中省略
var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
}

// IPToURL 将 IP 地址转换为 URL
//
//	IPToURL("127.0.0.1", "", 0)      -> "http://127.0.0.1/"
//	IPToURL("127.0.0.1", "", 8080)   -> "http://127.0.0.1:8080/"
//	IPToURL("::1", "https", 8443)    -> "https://[::1]:8443/"
//
// port 为 0 或等于 scheme 默认端口时不输出端口
func IPToURL(addr, scheme string, port int) (string, error) {
	if scheme == "" {
		scheme = "http"
	}

	ip, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil {
		return "", fmt.Errorf("expected an IPv4 or IPv6 address, got %q", addr)
	}
	host := ip.String()
	if ip.Is6() {
		// RFC 6874: URL 中的 zone 分隔符写作 %25
		host = "[" + strings.Replace(host, "%", "%25", 1) + "]"
	}

	if port == 0 || port == defaultPorts[scheme] {
		return fmt.Sprintf("%s://%s/", scheme, host), nil
	}
	return fmt.Sprintf("%s://%s:%d/", scheme, host, port), nil
}

// WithDefaultPort 为没有端口的主机地址补上默认端口
// "1.1.1.1" -> "1.1.1.1:53", "::1" -> "[::1]:53", "127.0.0.1:5353" 保持不变
func WithDefaultPort(hostport string, port int) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(strings.Trim(hostport, "[]"), strconv.Itoa(port))
}
