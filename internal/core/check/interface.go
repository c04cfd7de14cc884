package check

import (
	"context"
	"iter"

	"github.com/cyllective/egress0r/internal/core/model"
)

// Check 出网检测项
//
// 每个协议一个实现 (dns/icmp/smtp/http/ftp/port)。Outcomes 返回惰性的单次序列：
// 每次迭代都会真实地发起网络请求，消费方可以随时停止迭代。
// 网络层面的失败全部转换成 Negative 消息，不作为错误返回；
// 只有构建阶段的配置错误 (model.ConfigError) 会向上传播。
type Check interface {
	// Name 检测项名称
	Name() model.CheckName

	// StartMessage 开始执行前打印的提示
	StartMessage() string

	// Outcomes 执行检测并逐条产生结果
	Outcomes(ctx context.Context) iter.Seq[model.Message]
}
