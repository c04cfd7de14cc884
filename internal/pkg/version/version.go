// 版本信息
// 发布时更新 Version，BuildTime/GitCommit/GoVersion 通过 -ldflags "-X" 注入

package version

import "runtime"

var (
	Version   = "1.2.0"
	BuildTime string
	GitCommit string
	GoVersion = runtime.Version()
)

// CurlUserAgent TCP 端口探测使用的 User-Agent，接收端按 curl 请求处理
const CurlUserAgent = "curl/7.59.0"

func GetVersion() string {
	return Version
}

func GetUserAgent() string {
	return "egress0r/" + Version
}
