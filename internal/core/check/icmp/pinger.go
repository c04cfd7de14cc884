package icmp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	xicmp "golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

// ErrNoReply 超时或没有收到匹配的回显应答
var ErrNoReply = errors.New("no echo reply")

// Reply 回显应答
type Reply struct {
	ID   int
	Seq  int
	Data []byte
}

// Pinger 发送单个回显请求并等待应答
type Pinger interface {
	Ping(ctx context.Context, target netip.Addr, id, seq int, data []byte, timeout time.Duration) (*Reply, error)
}

// SocketPinger 基于 x/net/icmp 的 Pinger
//
// Privileged 为 true 时使用原始套接字 (需要 root 或 CAP_NET_RAW)，
// 否则使用 Linux/macOS 的非特权 ICMP 数据报套接字，此时标识符由内核改写并按套接字分发。
type SocketPinger struct {
	Privileged bool
}

func NewSocketPinger(privileged bool) *SocketPinger {
	return &SocketPinger{Privileged: privileged}
}

func (p *SocketPinger) listenParams(target netip.Addr) (network, address string, proto int, request xicmp.Type) {
	if target.Is4() {
		network = "udp4"
		if p.Privileged {
			network = "ip4:icmp"
		}
		return network, "0.0.0.0", protocolICMP, ipv4.ICMPTypeEcho
	}
	network = "udp6"
	if p.Privileged {
		network = "ip6:ipv6-icmp"
	}
	return network, "::", protocolIPv6ICMP, ipv6.ICMPTypeEchoRequest
}

func (p *SocketPinger) Ping(ctx context.Context, target netip.Addr, id, seq int, data []byte, timeout time.Duration) (*Reply, error) {
	target = target.Unmap()
	network, address, proto, request := p.listenParams(target)

	conn, err := xicmp.ListenPacket(network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to open icmp socket %s: %w", network, err)
	}
	defer conn.Close()

	msg := xicmp.Message{
		Type: request,
		Code: 0,
		Body: &xicmp.Echo{ID: id, Seq: seq, Data: data},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal echo request: %w", err)
	}

	var dst net.Addr = &net.IPAddr{IP: target.AsSlice()}
	if !p.Privileged {
		dst = &net.UDPAddr{IP: target.AsSlice()}
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := conn.WriteTo(b, dst); err != nil {
		return nil, fmt.Errorf("failed to send echo request to %s: %w", target, err)
	}

	buf := make([]byte, 65535)
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return nil, fmt.Errorf("%w from %s: %v", ErrNoReply, target, err)
		}
		if !samePeer(peer, target) {
			continue
		}
		reply, err := xicmp.ParseMessage(proto, buf[:n])
		if err != nil {
			continue
		}
		if reply.Type != ipv4.ICMPTypeEchoReply && reply.Type != ipv6.ICMPTypeEchoReply {
			continue
		}
		echo, ok := reply.Body.(*xicmp.Echo)
		if !ok {
			continue
		}
		replyID := echo.ID
		if !p.Privileged {
			// 非特权套接字的标识符由内核管理
			replyID = id
		} else if echo.ID != id {
			continue
		}
		return &Reply{
			ID:   replyID,
			Seq:  echo.Seq,
			Data: append([]byte(nil), echo.Data...),
		}, nil
	}
}

func samePeer(peer net.Addr, target netip.Addr) bool {
	var ip net.IP
	switch v := peer.(type) {
	case *net.IPAddr:
		ip = v.IP
	case *net.UDPAddr:
		ip = v.IP
	default:
		return false
	}
	addr, ok := netip.AddrFromSlice(ip)
	return ok && addr.Unmap() == target
}
