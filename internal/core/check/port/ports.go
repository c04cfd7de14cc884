package port

import (
	"bufio"
	_ "embed"
	"strconv"
	"strings"
)

const (
	PortMin = 1
	PortMax = 65535

	ModeTop10  = "top10"
	ModeTop100 = "top100"
	ModeAll    = "all"
)

// ValidModes 端口选择模式
var ValidModes = []string{ModeTop10, ModeTop100, ModeAll}

//go:embed ports/top-10-ports.txt
var top10List string

//go:embed ports/top-100-ports.txt
var top100List string

// PortsForMode 返回模式对应的端口列表
func PortsForMode(mode string) []int {
	switch mode {
	case ModeAll:
		ports := make([]int, 0, PortMax)
		for p := PortMin; p <= PortMax; p++ {
			ports = append(ports, p)
		}
		return ports
	case ModeTop100:
		return parsePortList(top100List)
	case ModeTop10:
		return parsePortList(top10List)
	default:
		return nil
	}
}

// parsePortList 每行一个端口，忽略无法解析或超出范围的行
func parsePortList(s string) []int {
	var ports []int
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		p, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil || p < PortMin || p > PortMax {
			continue
		}
		ports = append(ports, p)
	}
	return ports
}
