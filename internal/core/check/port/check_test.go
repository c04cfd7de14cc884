package port

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyllective/egress0r/internal/core/model"
)

var v4Only = model.NetworkCapabilities{IPv4: true}

// only22 只有 22 端口可达，端口越小返回越慢，用于验证输出顺序
func only22(_ context.Context, _ string, port int) (bool, error) {
	time.Sleep(time.Duration(30-port) * time.Millisecond)
	return port == 22, nil
}

func TestSweep_PreservesInputOrder(t *testing.T) {
	c, err := New("192.0.2.10", "", ModeTop10, v4Only, WithWorkers(3))
	require.NoError(t, err)

	var got []Result
	for r := range c.Sweep(context.Background(), []int{21, 22, 23}, "tcp", "192.0.2.10", only22) {
		got = append(got, r)
	}
	assert.Equal(t, []Result{{21, false}, {22, true}, {23, false}}, got)
}

func TestNew_InvalidMode(t *testing.T) {
	_, err := New("192.0.2.10", "", "top5", v4Only)
	require.ErrorIs(t, err, model.ErrInvalidConfig)

	var cfgErr *model.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "mode", cfgErr.Field)
	assert.Equal(t, ValidModes, cfgErr.Allowed)
}

func TestSetMode(t *testing.T) {
	c, err := New("192.0.2.10", "", "", v4Only)
	require.NoError(t, err)
	assert.Equal(t, ModeTop10, c.Mode())

	assert.ErrorIs(t, c.SetMode("top5"), model.ErrInvalidConfig)
	assert.Equal(t, ModeTop10, c.Mode())

	require.NoError(t, c.SetMode(ModeAll))
	assert.Equal(t, ModeAll, c.Mode())
}

func TestNew_InvalidAddress(t *testing.T) {
	_, err := New("2001:db8::1", "", ModeTop10, v4Only)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	_, err = New("", "192.0.2.1", ModeTop10, v4Only)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}

func TestPortsForMode(t *testing.T) {
	assert.Equal(t, []int{21, 22, 23, 25, 80, 110, 139, 443, 445, 3389}, PortsForMode(ModeTop10))
	assert.Len(t, PortsForMode(ModeTop100), 100)
	all := PortsForMode(ModeAll)
	assert.Len(t, all, 65535)
	assert.Equal(t, 1, all[0])
	assert.Equal(t, 65535, all[len(all)-1])
	assert.Nil(t, PortsForMode("top5"))
}

func TestParsePortList(t *testing.T) {
	assert.Equal(t, []int{22, 65535}, parsePortList("22\nfoo\n0\n65535\n70000\n\n"))
}

func TestOutcomes_OrderAndFamilies(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	record := func(proto string) ProbeFunc {
		return func(_ context.Context, host string, port int) (bool, error) {
			mu.Lock()
			calls = append(calls, fmt.Sprintf("%s/%s/%d", proto, host, port))
			mu.Unlock()
			return port == 22, nil
		}
	}

	c, err := New("192.0.2.10", "2001:db8::10", ModeTop10, v4Only,
		WithProbes(record("tcp"), record("udp")))
	require.NoError(t, err)

	var msgs []model.Message
	for m := range c.Outcomes(context.Background()) {
		msgs = append(msgs, m)
	}

	// IPv6 不可用，只有 v4 的 tcp 与 udp 两轮
	require.Len(t, msgs, 20)
	assert.Equal(t, "Failed to connect via 21/tcp to 192.0.2.10", msgs[0].Text)
	assert.Equal(t, "Connected via 22/tcp to 192.0.2.10", msgs[1].Text)
	assert.True(t, msgs[1].OK())
	assert.Equal(t, "Failed to connect via 21/udp to 192.0.2.10", msgs[10].Text)
	assert.Equal(t, "Connected via 22/udp to 192.0.2.10", msgs[11].Text)

	for _, call := range calls {
		assert.NotContains(t, call, "2001:db8::10")
	}
}

func TestOutcomes_DisabledProtocol(t *testing.T) {
	never := func(context.Context, string, int) (bool, error) { return false, nil }
	c, err := New("192.0.2.10", "2001:db8::10", ModeTop10, model.NetworkCapabilities{IPv4: true, IPv6: true},
		WithTCP(false, 0), WithProbes(never, never))
	require.NoError(t, err)

	var msgs []model.Message
	for m := range c.Outcomes(context.Background()) {
		msgs = append(msgs, m)
	}
	require.Len(t, msgs, 20)
	assert.Contains(t, msgs[0].Text, "/udp to 192.0.2.10")
	assert.Contains(t, msgs[10].Text, "/udp to 2001:db8::10")
}

func TestOutcomes_ProbeErrorIsNegative(t *testing.T) {
	failing := func(context.Context, string, int) (bool, error) { return true, ErrUnreachable }
	c, err := New("192.0.2.10", "", ModeTop10, v4Only, WithUDP(false, 0), WithProbes(failing, nil))
	require.NoError(t, err)

	for m := range c.Outcomes(context.Background()) {
		assert.False(t, m.OK())
	}
}

func TestTCPProbe(t *testing.T) {
	userAgent := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent <- r.UserAgent()
		_, port, _ := net.SplitHostPort(r.Host)
		fmt.Fprintf(w, "Port: %s reached.\n", port)
	}))
	defer srv.Close()

	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	probe := TCPProbe(2 * time.Second)
	ok, err := probe(context.Background(), "127.0.0.1", port)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "curl/7.59.0", <-userAgent)
}

func TestTCPProbe_MarkerMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "hello")
	}))
	defer srv.Close()
	port := srv.Listener.Addr().(*net.TCPAddr).Port

	ok, err := TCPProbe(2*time.Second)(context.Background(), "127.0.0.1", port)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTCPProbe_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	ok, err := TCPProbe(time.Second)(context.Background(), "127.0.0.1", port)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnreachable)
}

// startUDPResponder 启动 UDP 回显服务，reply 为 nil 时原样回显
func startUDPResponder(t *testing.T, reply []byte) int {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			out := buf[:n]
			if reply != nil {
				out = reply
			}
			_, _ = conn.WriteTo(out, addr)
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func TestUDPProbe(t *testing.T) {
	port := startUDPResponder(t, nil)
	ok, err := UDPProbe(2*time.Second, "ident-1234")(context.Background(), "127.0.0.1", port)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUDPProbe_WrongReply(t *testing.T) {
	port := startUDPResponder(t, []byte("nope"))
	ok, err := UDPProbe(2*time.Second, "ident-1234")(context.Background(), "127.0.0.1", port)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUDPProbe_Timeout(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	port := conn.LocalAddr().(*net.UDPAddr).Port

	ok, err := UDPProbe(200*time.Millisecond, "ident")(context.Background(), "127.0.0.1", port)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestIdentifierPerInstance(t *testing.T) {
	a, err := New("192.0.2.10", "", ModeTop10, v4Only)
	require.NoError(t, err)
	b, err := New("192.0.2.10", "", ModeTop10, v4Only)
	require.NoError(t, err)
	assert.NotEmpty(t, a.Identifier())
	assert.NotEqual(t, a.Identifier(), b.Identifier())
}
