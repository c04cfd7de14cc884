package dns

import (
	"strings"

	mdns "github.com/miekg/dns"
)

// QueryRecordTypes 解析检测支持的记录类型
var QueryRecordTypes = []string{"A", "AAAA", "MX", "TXT", "CNAME"}

// Query 一条解析检测
type Query struct {
	Record          string
	RecordType      string
	ExpectedAnswers []string
}

// ExtractAnswers 从应答中提取与查询类型匹配的结果
//
//	A/AAAA -> 地址
//	TXT    -> 去掉引号的字符串
//	MX     -> 交换主机 (去掉末尾的点)
//	CNAME  -> 目标 (去掉末尾的点)
func (q Query) ExtractAnswers(answers []mdns.RR) []string {
	var out []string
	for _, rr := range answers {
		switch v := rr.(type) {
		case *mdns.A:
			out = append(out, v.A.String())
		case *mdns.AAAA:
			out = append(out, v.AAAA.String())
		case *mdns.TXT:
			out = append(out, strings.Trim(strings.Join(v.Txt, ""), `"`))
		case *mdns.MX:
			out = append(out, strings.TrimSuffix(v.Mx, "."))
		case *mdns.CNAME:
			out = append(out, strings.TrimSuffix(v.Target, "."))
		}
	}
	return out
}

// AnswerIsExpected 提取结果与期望集合是否有交集
func (q Query) AnswerIsExpected(answers []mdns.RR) bool {
	if len(q.ExpectedAnswers) == 0 {
		return false
	}
	expected := make(map[string]struct{}, len(q.ExpectedAnswers))
	for _, a := range q.ExpectedAnswers {
		expected[a] = struct{}{}
	}
	for _, a := range q.ExtractAnswers(answers) {
		if _, ok := expected[a]; ok {
			return true
		}
	}
	return false
}
