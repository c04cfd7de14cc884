package dialer

import (
	"context"
	"net"
	"time"
)

// Dialer 定义了网络连接器接口
type Dialer interface {
	// DialContext 建立连接
	// network: 协议 (tcp, tcp4, tcp6, udp)
	// address: 目标地址 (ip:port)
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultDialer 默认直连拨号器
type DefaultDialer struct {
	Timeout time.Duration
}

func NewDefaultDialer(timeout time.Duration) *DefaultDialer {
	return &DefaultDialer{
		Timeout: timeout,
	}
}

func (d *DefaultDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout: d.Timeout,
	}
	return dialer.DialContext(ctx, network, address)
}

// DialFunc 返回不带 context 参数的拨号函数，用于只接受 func(network, address) 的第三方库 (ftp)
// 建立的连接带空闲超时，每次读写都会顺延截止时间
func (d *DefaultDialer) DialFunc(ctx context.Context) func(network, address string) (net.Conn, error) {
	return func(network, address string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		return NewIdleTimeoutConn(conn, d.Timeout), nil
	}
}

// IdleTimeoutConn 读写前刷新截止时间的连接
type IdleTimeoutConn struct {
	net.Conn
	Timeout time.Duration
}

func NewIdleTimeoutConn(conn net.Conn, timeout time.Duration) *IdleTimeoutConn {
	return &IdleTimeoutConn{Conn: conn, Timeout: timeout}
}

func (c *IdleTimeoutConn) Read(b []byte) (int, error) {
	if c.Timeout > 0 {
		if err := c.Conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *IdleTimeoutConn) Write(b []byte) (int, error) {
	if c.Timeout > 0 {
		if err := c.Conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
