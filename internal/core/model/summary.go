package model

// Record 带检测项名称的结果，用于导出
type Record struct {
	Check   CheckName
	Message Message
}

// Headers 实现 TabularData 接口
func (r Record) Headers() []string {
	return []string{"Check", "Time", "Status", "Message"}
}

// Rows 实现 TabularData 接口
func (r Record) Rows() [][]string {
	row := r.Message.Rows()[0]
	return [][]string{append([]string{string(r.Check)}, row...)}
}

// Summary 一次运行的统计
// Positive/Unknown/Info 计为成功，Negative 计为失败
type Summary struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Add 按消息的布尔语义计数
func (s *Summary) Add(m Message) {
	if m.OK() {
		s.Successful++
	} else {
		s.Failed++
	}
}

// Total 总数
func (s Summary) Total() int {
	return s.Successful + s.Failed
}
