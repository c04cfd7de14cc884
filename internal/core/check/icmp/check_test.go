package icmp

import (
	"context"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
)

// fakePinger 按目标决定是否应答，可选择篡改标识符或回显数据
type fakePinger struct {
	alive     map[string]bool
	wrongID   bool
	dropAfter int
	requests  []fakeRequest
}

type fakeRequest struct {
	target string
	id     int
	data   []byte
}

func (f *fakePinger) Ping(_ context.Context, target netip.Addr, id, seq int, data []byte, _ time.Duration) (*Reply, error) {
	f.requests = append(f.requests, fakeRequest{target: target.String(), id: id, data: append([]byte(nil), data...)})
	if !f.alive[target.String()] {
		return nil, ErrNoReply
	}
	if f.dropAfter > 0 && len(f.requests) > f.dropAfter {
		return &Reply{ID: id, Seq: seq, Data: []byte("garbage")}, nil
	}
	replyID := id
	if f.wrongID {
		replyID = id + 1
	}
	return &Reply{ID: replyID, Seq: seq, Data: append([]byte("prefix"), data...)}, nil
}

func newPayload(t *testing.T, content string, chunkSize, maxChunks int) *payload.Payload {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "icmp.bin"), []byte(content), 0o644))
	p, err := payload.New(dir, "icmp.bin", payload.WithChunking(chunkSize, maxChunks))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func collect(c *ICMPCheck) []model.Message {
	var out []model.Message
	for m := range c.Outcomes(context.Background()) {
		out = append(out, m)
	}
	return out
}

func TestICMPCheck_PingAndSkip(t *testing.T) {
	pinger := &fakePinger{alive: map[string]bool{"192.0.2.1": true}}
	c, err := New([]string{"192.0.2.1", "example.com", "192.0.2.2", "2001:db8::1"}, time.Second,
		model.NetworkCapabilities{IPv4: true}, WithPinger(pinger))
	require.NoError(t, err)

	msgs := collect(c)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Received echo response from 192.0.2.1", msgs[0].Text)
	assert.Equal(t, model.MessagePositive, msgs[0].Type)
	assert.Equal(t, "Skipped target 'example.com' because it's not an IP", msgs[1].Text)
	assert.Equal(t, model.MessageInfo, msgs[1].Type)
	assert.Equal(t, "No echo response from 192.0.2.2", msgs[2].Text)
	assert.False(t, msgs[2].OK())

	// IPv6 目标被静默跳过
	for _, r := range pinger.requests {
		assert.NotEqual(t, "2001:db8::1", r.target)
	}
	for _, r := range pinger.requests {
		assert.GreaterOrEqual(t, r.id, 1)
		assert.LessOrEqual(t, r.id, 32767)
	}
}

func TestICMPCheck_IdentifierMismatch(t *testing.T) {
	pinger := &fakePinger{alive: map[string]bool{"192.0.2.1": true}, wrongID: true}
	c, err := New([]string{"192.0.2.1"}, time.Second, model.NetworkCapabilities{IPv4: true}, WithPinger(pinger))
	require.NoError(t, err)

	ok, err := c.Ping(context.Background(), netip.MustParseAddr("192.0.2.1"))
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNoReply)
}

func TestICMPCheck_Exfil(t *testing.T) {
	pinger := &fakePinger{alive: map[string]bool{"2001:db8::1": true}}
	p := newPayload(t, "0123456789", 4, 2)
	c, err := New([]string{"2001:db8::1"}, time.Second, model.NetworkCapabilities{IPv6: true},
		WithPinger(pinger), WithExfilPayload(p))
	require.NoError(t, err)

	msgs := collect(c)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Received echo response from 2001:db8::1", msgs[0].Text)
	assert.Equal(t, "Exfiltrated 8 bytes to 2001:db8::1", msgs[1].Text)
	assert.True(t, msgs[1].OK())

	// ping + 2 个数据块
	require.Len(t, pinger.requests, 3)
	assert.Empty(t, pinger.requests[0].data)
	assert.Equal(t, []byte("0123"), pinger.requests[1].data)
	assert.Equal(t, []byte("4567"), pinger.requests[2].data)
}

func TestICMPCheck_ExfilChunkNotEchoed(t *testing.T) {
	pinger := &fakePinger{alive: map[string]bool{"192.0.2.1": true}, dropAfter: 2}
	p := newPayload(t, "aaaabbbbcccc", 4, 3)
	c, err := New([]string{"192.0.2.1"}, time.Second, model.NetworkCapabilities{IPv4: true},
		WithPinger(pinger), WithExfilPayload(p))
	require.NoError(t, err)

	msgs := collect(c)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Failed to exfiltrate data to 192.0.2.1", msgs[1].Text)
	assert.False(t, msgs[1].OK())
	// 第二个数据块失败后中止
	assert.Len(t, pinger.requests, 3)
}

func TestICMPCheck_ExfilMissingPayload(t *testing.T) {
	pinger := &fakePinger{alive: map[string]bool{"192.0.2.1": true}}
	p, err := payload.New(t.TempDir(), "absent.bin", payload.WithChunking(4, 2))
	require.NoError(t, err)
	c, err := New([]string{"192.0.2.1"}, time.Second, model.NetworkCapabilities{IPv4: true},
		WithPinger(pinger), WithExfilPayload(p))
	require.NoError(t, err)

	ok, err := c.Exfil(context.Background(), netip.MustParseAddr("192.0.2.1"), p)
	assert.False(t, ok)
	assert.ErrorIs(t, err, payload.ErrUnavailable)
}

func TestICMPCheck_StopEarly(t *testing.T) {
	pinger := &fakePinger{alive: map[string]bool{}}
	c, err := New([]string{"192.0.2.1", "192.0.2.2"}, time.Second, model.NetworkCapabilities{IPv4: true}, WithPinger(pinger))
	require.NoError(t, err)

	for range c.Outcomes(context.Background()) {
		break
	}
	assert.Len(t, pinger.requests, 1)
}

func TestSamePeer(t *testing.T) {
	target := netip.MustParseAddr("192.0.2.1")
	assert.True(t, samePeer(&net.IPAddr{IP: net.ParseIP("192.0.2.1")}, target))
	assert.True(t, samePeer(&net.UDPAddr{IP: net.ParseIP("192.0.2.1")}, target))
	assert.False(t, samePeer(nil, target))
}
