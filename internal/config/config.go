/**
 * 配置结构定义
 * @author: sun977
 * @date: 2026.02.11
 * @description: 与 config.yaml 一一对应，字段校验使用 validator 标签，
 *               超时时间统一以秒为单位的整数配置。
 */

package config

import (
	"strings"
	"time"
)

// Config 根配置
// 各检测项小节只在对应开关打开时要求必填字段 (见 validateEnabledSections)
type Config struct {
	DataDir string          `yaml:"data_dir" mapstructure:"data_dir" validate:"required"` // 载荷文件目录
	Log     *LogConfig      `yaml:"log" mapstructure:"log" validate:"required"`
	Sanity  SanityConfig    `yaml:"sanity" mapstructure:"sanity"`
	Check   CheckConfig     `yaml:"check" mapstructure:"check"`
	Output  OutputConfig    `yaml:"output" mapstructure:"output"`
	DNS     DNSConfig       `yaml:"dns" mapstructure:"dns"`
	ICMP    ICMPConfig      `yaml:"icmp" mapstructure:"icmp"`
	SMTP    SMTPConfig      `yaml:"smtp" mapstructure:"smtp"`
	HTTP    HTTPConfig      `yaml:"http" mapstructure:"http"`
	FTP     FTPConfig       `yaml:"ftp" mapstructure:"ftp"`
	Port    PortCheckConfig `yaml:"port" mapstructure:"port"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"` // 日志级别
	Format     string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=text json"`                                     // 日志格式
	Output     string `yaml:"output" mapstructure:"output" validate:"omitempty,oneof=stdout stderr file"`                            // 日志输出
	FilePath   string `yaml:"file_path" mapstructure:"file_path" validate:"required_if=Output file"`                                 // 日志文件路径
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size" validate:"min=0"`                                                     // 最大文件大小（MB）
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups" validate:"min=0"`                                               // 最大备份数
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age" validate:"min=0"`                                                       // 最大保留天数
	Compress   bool   `yaml:"compress" mapstructure:"compress"`                                                                      // 是否压缩
	Caller     bool   `yaml:"caller" mapstructure:"caller"`                                                                          // 是否显示调用者信息
}

// SanityConfig 环境检测配置
type SanityConfig struct {
	Override OverrideConfig `yaml:"override" mapstructure:"override"`
}

// OverrideConfig 手动开启/关闭某个地址族，留空表示按探测结果
type OverrideConfig struct {
	IPv4 string `yaml:"ipv4" mapstructure:"ipv4" validate:"omitempty,oneof=enable disable"`
	IPv6 string `yaml:"ipv6" mapstructure:"ipv6" validate:"omitempty,oneof=enable disable"`
}

// CheckConfig 各检测项开关
type CheckConfig struct {
	DNS  bool `yaml:"dns" mapstructure:"dns"`
	ICMP bool `yaml:"icmp" mapstructure:"icmp"`
	SMTP bool `yaml:"smtp" mapstructure:"smtp"`
	HTTP bool `yaml:"http" mapstructure:"http"`
	FTP  bool `yaml:"ftp" mapstructure:"ftp"`
	Port bool `yaml:"port" mapstructure:"port"`
}

// Enabled 按名称查询开关
func (c CheckConfig) Enabled(name string) bool {
	switch name {
	case "dns":
		return c.DNS
	case "icmp":
		return c.ICMP
	case "smtp":
		return c.SMTP
	case "http":
		return c.HTTP
	case "ftp":
		return c.FTP
	case "port":
		return c.Port
	}
	return false
}

// OutputConfig 结果导出
type OutputConfig struct {
	CSV   string `yaml:"csv" mapstructure:"csv"`     // CSV 导出路径，留空不导出
	Table bool   `yaml:"table" mapstructure:"table"` // 结束时以表格形式汇总全部结果
}

// ExfilFileConfig 只包含载荷文件名的外传配置
type ExfilFileConfig struct {
	Filename string `yaml:"filename" mapstructure:"filename"`
	ReadMode string `yaml:"read_mode" mapstructure:"read_mode" validate:"omitempty,oneof=rb r binary text"`
}

// DNSConfig DNS 检测配置
type DNSConfig struct {
	Timeout int              `yaml:"timeout" mapstructure:"timeout" validate:"min=1"`
	Servers []string         `yaml:"servers" mapstructure:"servers" validate:"dive,ip"` // 外部 DNS 服务器
	Queries []DNSQueryConfig `yaml:"queries" mapstructure:"queries" validate:"dive"`
	Exfil   *DNSExfilConfig  `yaml:"exfil" mapstructure:"exfil"` // 为空时不做外传
}

// DNSQueryConfig 解析检测项
type DNSQueryConfig struct {
	Record          string   `yaml:"record" mapstructure:"record" validate:"required"`
	RecordType      string   `yaml:"record_type" mapstructure:"record_type" validate:"required,oneof=A AAAA MX TXT CNAME"`
	ExpectedAnswers []string `yaml:"expected_answers" mapstructure:"expected_answers"`
}

// DNSExfilConfig DNS 子域名外传配置
type DNSExfilConfig struct {
	Filename   string `yaml:"filename" mapstructure:"filename" validate:"required"`
	Nameserver string `yaml:"nameserver" mapstructure:"nameserver" validate:"required,ip"`
	Domain     string `yaml:"domain" mapstructure:"domain" validate:"required,fqdn"`
	RecordType string `yaml:"record_type" mapstructure:"record_type" validate:"omitempty,oneof=A AAAA MX TXT"`
	ChunkSize  int    `yaml:"chunk_size" mapstructure:"chunk_size" validate:"min=0"`
	MaxChunks  int    `yaml:"max_chunks" mapstructure:"max_chunks" validate:"min=0"`
}

// ICMPConfig ICMP 检测配置
type ICMPConfig struct {
	Timeout     int              `yaml:"timeout" mapstructure:"timeout" validate:"min=1"`
	Privileged  bool             `yaml:"privileged" mapstructure:"privileged"` // false 时使用非特权 datagram ICMP socket
	TargetHosts []string         `yaml:"target_hosts" mapstructure:"target_hosts" validate:"dive,required"`
	Exfil       *ICMPExfilConfig `yaml:"exfil" mapstructure:"exfil"`
}

// ICMPExfilConfig ICMP 外传配置
type ICMPExfilConfig struct {
	Filename  string `yaml:"filename" mapstructure:"filename" validate:"required"`
	ChunkSize int    `yaml:"chunk_size" mapstructure:"chunk_size" validate:"min=1"`
	MaxChunks int    `yaml:"max_chunks" mapstructure:"max_chunks" validate:"min=1"`
}

// SMTPConfig SMTP 检测配置
type SMTPConfig struct {
	Timeout    int             `yaml:"timeout" mapstructure:"timeout" validate:"min=1"`
	Host       string          `yaml:"host" mapstructure:"host"`
	Port       int             `yaml:"port" mapstructure:"port" validate:"min=0,max=65535"`
	Encryption string          `yaml:"encryption" mapstructure:"encryption"` // none(或留空)/tls/ssl，由检测项构建时校验
	FromAddr   string          `yaml:"from_addr" mapstructure:"from_addr" validate:"omitempty,mailaddr"`
	ToAddr     string          `yaml:"to_addr" mapstructure:"to_addr" validate:"omitempty,mailaddr"`
	Username   string          `yaml:"username" mapstructure:"username"`
	Password   string          `yaml:"password" mapstructure:"password"`
	Subject    string          `yaml:"subject" mapstructure:"subject"`
	Message    string          `yaml:"message" mapstructure:"message"`
	Exfil      SMTPExfilConfig `yaml:"exfil" mapstructure:"exfil"`
}

// SMTPExfilConfig 邮件外传配置
type SMTPExfilConfig struct {
	Filename  string `yaml:"filename" mapstructure:"filename"`
	ExfilMode string `yaml:"exfil_mode" mapstructure:"exfil_mode"` // inline/attachment，由载荷构建时校验
	ReadMode  string `yaml:"read_mode" mapstructure:"read_mode" validate:"omitempty,oneof=rb r binary text"`
}

// HTTPConfig HTTP 检测配置
type HTTPConfig struct {
	Timeout int             `yaml:"timeout" mapstructure:"timeout" validate:"min=1"`
	Verbs   []string        `yaml:"verbs" mapstructure:"verbs" validate:"dive,oneof=GET POST PUT PATCH DELETE"`
	URLs    []string        `yaml:"urls" mapstructure:"urls" validate:"dive,http_url"`
	Proxies ProxyConfig     `yaml:"proxies" mapstructure:"proxies"`
	Exfil   ExfilFileConfig `yaml:"exfil" mapstructure:"exfil"`
}

// ProxyConfig 代理配置，http/https 都配置时才启用代理重试
type ProxyConfig struct {
	HTTP  string `yaml:"http" mapstructure:"http" validate:"omitempty,proxyurl"`
	HTTPS string `yaml:"https" mapstructure:"https" validate:"omitempty,proxyurl"`
}

// Enabled 是否启用代理
func (p ProxyConfig) Enabled() bool {
	return p.HTTP != "" && p.HTTPS != ""
}

// FTPConfig FTP 检测配置
type FTPConfig struct {
	Timeout   int             `yaml:"timeout" mapstructure:"timeout" validate:"min=1"`
	Host      string          `yaml:"host" mapstructure:"host"` // host 或 host:port
	Username  string          `yaml:"username" mapstructure:"username"`
	Password  string          `yaml:"password" mapstructure:"password"`
	UploadDir string          `yaml:"upload_dir" mapstructure:"upload_dir"`
	Exfil     ExfilFileConfig `yaml:"exfil" mapstructure:"exfil"`
}

// PortCheckConfig 端口出网检测配置
type PortCheckConfig struct {
	Mode       string  `yaml:"mode" mapstructure:"mode"` // top10/top100/all，由检测项构建时校验
	IPv4Addr   string  `yaml:"ipv4_addr" mapstructure:"ipv4_addr" validate:"omitempty,ipv4"`
	IPv6Addr   string  `yaml:"ipv6_addr" mapstructure:"ipv6_addr" validate:"omitempty,ipv6"`
	WithTCP    bool    `yaml:"with_tcp" mapstructure:"with_tcp"`
	TCPTimeout int     `yaml:"tcp_timeout" mapstructure:"tcp_timeout" validate:"min=1"`
	WithUDP    bool    `yaml:"with_udp" mapstructure:"with_udp"`
	UDPTimeout int     `yaml:"udp_timeout" mapstructure:"udp_timeout" validate:"min=1"`
	Workers    int     `yaml:"workers" mapstructure:"workers" validate:"min=0"`       // 0 表示 CPU 核数
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit" validate:"min=0"` // 每秒探测次数，0 表示不限速
}

// Seconds 把以秒为单位的整数配置转换为 time.Duration
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Normalize 统一枚举值的大小写，在校验之前调用
// DNS 记录类型和 HTTP 方法转大写，读取模式转小写，与检测项构建时的处理一致
func (c *Config) Normalize() {
	for i := range c.DNS.Queries {
		c.DNS.Queries[i].RecordType = strings.ToUpper(strings.TrimSpace(c.DNS.Queries[i].RecordType))
	}
	if c.DNS.Exfil != nil {
		c.DNS.Exfil.RecordType = strings.ToUpper(strings.TrimSpace(c.DNS.Exfil.RecordType))
	}
	for i, verb := range c.HTTP.Verbs {
		c.HTTP.Verbs[i] = strings.ToUpper(strings.TrimSpace(verb))
	}
	c.HTTP.Exfil.ReadMode = strings.ToLower(strings.TrimSpace(c.HTTP.Exfil.ReadMode))
	c.SMTP.Exfil.ReadMode = strings.ToLower(strings.TrimSpace(c.SMTP.Exfil.ReadMode))
	c.FTP.Exfil.ReadMode = strings.ToLower(strings.TrimSpace(c.FTP.Exfil.ReadMode))
}
