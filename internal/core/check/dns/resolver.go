package dns

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
	"time"

	mdns "github.com/miekg/dns"

	"github.com/cyllective/egress0r/internal/pkg/utils"
)

// ErrResolve 解析失败 (超时、NXDOMAIN、无应答等)
var ErrResolve = errors.New("dns resolution failed")

// DefaultResolvConf 系统解析器配置文件
const DefaultResolvConf = "/etc/resolv.conf"

const defaultDNSPort = 53

// Exchanger 发送单个 DNS 请求，*mdns.Client 满足该接口
type Exchanger interface {
	ExchangeContext(ctx context.Context, m *mdns.Msg, address string) (*mdns.Msg, time.Duration, error)
}

// resolver 面向单个服务器的递归查询
type resolver struct {
	udp     Exchanger
	tcp     Exchanger
	timeout time.Duration
}

func newResolver(timeout time.Duration) *resolver {
	return &resolver{
		udp:     &mdns.Client{Net: "udp", Timeout: timeout},
		tcp:     &mdns.Client{Net: "tcp", Timeout: timeout},
		timeout: timeout,
	}
}

// resolve 向 server 查询 name，返回与 recordType 匹配的应答记录
// 没有匹配记录同样视为解析失败
func (r *resolver) resolve(ctx context.Context, server, name, recordType string) ([]mdns.RR, error) {
	qtype, ok := mdns.StringToType[strings.ToUpper(recordType)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported record type %q", ErrResolve, recordType)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	address := utils.WithDefaultPort(server, defaultDNSPort)
	resp, _, err := r.udp.ExchangeContext(ctx, msg, address)
	if err == nil && resp != nil && resp.Truncated && r.tcp != nil {
		resp, _, err = r.tcp.ExchangeContext(ctx, msg, address)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s via %s: %v", ErrResolve, recordType, name, server, err)
	}
	if resp.Rcode != mdns.RcodeSuccess {
		return nil, fmt.Errorf("%w: %s %s via %s: %s", ErrResolve, recordType, name, server, mdns.RcodeToString[resp.Rcode])
	}

	var answers []mdns.RR
	for _, rr := range resp.Answer {
		if rr.Header().Rrtype == qtype {
			answers = append(answers, rr)
		}
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: %s %s via %s: no answer", ErrResolve, recordType, name, server)
	}
	return answers, nil
}

// ReadInternalNameservers 读取系统解析器配置中的 nameserver，去重并保持顺序
// 文件不存在时返回空列表
func ReadInternalNameservers(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return parseResolvConf(f)
}

func parseResolvConf(r io.Reader) ([]string, error) {
	var servers []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "nameserver ") {
			continue
		}
		addr, err := netip.ParseAddr(strings.TrimSpace(strings.TrimPrefix(line, "nameserver ")))
		if err != nil {
			continue
		}
		s := addr.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		servers = append(servers, s)
	}
	return servers, scanner.Err()
}
