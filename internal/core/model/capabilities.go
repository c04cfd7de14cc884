package model

// CheckName 检测项名称，对应配置文件 check.<name>
type CheckName string

const (
	CheckDNS  CheckName = "dns"
	CheckICMP CheckName = "icmp"
	CheckSMTP CheckName = "smtp"
	CheckHTTP CheckName = "http"
	CheckFTP  CheckName = "ftp"
	CheckPort CheckName = "port"

	// CheckSanity 环境检测阶段，不参与结果统计
	CheckSanity CheckName = "sanity"
)

// CheckOrder 编排器执行检测项的固定顺序
var CheckOrder = []CheckName{CheckDNS, CheckICMP, CheckSMTP, CheckHTTP, CheckFTP, CheckPort}

// NetworkCapabilities 本机网络能力
// 在任何检测开始前计算一次，之后只读地传给每个检测项
type NetworkCapabilities struct {
	IPv4 bool `json:"ipv4"`
	IPv6 bool `json:"ipv6"`
}

// Any 是否至少有一个地址族可用
func (c NetworkCapabilities) Any() bool {
	return c.IPv4 || c.IPv6
}
