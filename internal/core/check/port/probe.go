package port

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cyllective/egress0r/internal/core/lib/network/dialer"
	"github.com/cyllective/egress0r/internal/core/lib/network/netraw"
	"github.com/cyllective/egress0r/internal/pkg/utils"
	"github.com/cyllective/egress0r/internal/pkg/version"
)

// ErrUnreachable 端口不可达 (连接失败、超时或应答不含标记)
var ErrUnreachable = errors.New("port unreachable")

const (
	udpReadSize  = 1024
	maxBodyBytes = 1 << 20
)

// ProbeFunc 探测单个端口
type ProbeFunc func(ctx context.Context, host string, port int) (bool, error)

// TCPProbe 通过 HTTP 请求探测 TCP 端口
// 接收端需要对任意请求返回包含 "Port: <port> reached." 的响应体
func TCPProbe(timeout time.Duration) ProbeFunc {
	transport, _ := dialer.NewHTTPTransport(dialer.NewDefaultDialer(timeout), nil)
	client := &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return func(ctx context.Context, host string, port int) (bool, error) {
		target, err := utils.IPToURL(host, "http", port)
		if err != nil {
			return false, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return false, err
		}
		req.Header.Set("User-Agent", version.CurlUserAgent)

		resp, err := client.Do(req)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		marker := fmt.Sprintf("Port: %d reached.", port)
		return bytes.Contains(body, []byte(marker)), nil
	}
}

// UDPProbe 发送携带标识符的 UDP 报文并等待一个应答
//
// 数据报的负载是完整的 IP/UDP/标识符报文，接收端只需要原样回显收到的内容。
func UDPProbe(timeout time.Duration, identifier string) ProbeFunc {
	d := dialer.NewDefaultDialer(timeout)

	return func(ctx context.Context, host string, port int) (bool, error) {
		dst := net.ParseIP(host)
		if dst == nil {
			return false, fmt.Errorf("expected an IP address, got %q", host)
		}
		conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		defer conn.Close()

		local, ok := conn.LocalAddr().(*net.UDPAddr)
		if !ok {
			return false, fmt.Errorf("unexpected local address %s", conn.LocalAddr())
		}
		datagram, err := netraw.BuildUDPDatagram(local.IP, dst, local.Port, port, []byte(identifier))
		if err != nil {
			return false, err
		}

		deadline := time.Now().Add(timeout)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		if err := conn.SetDeadline(deadline); err != nil {
			return false, err
		}
		if _, err := conn.Write(datagram); err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}

		buf := make([]byte, udpReadSize)
		n, err := conn.Read(buf)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return bytes.Contains(buf[:n], []byte(identifier)), nil
	}
}
