package runner

import (
	"context"
	"errors"
	"iter"
	"testing"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyllective/egress0r/internal/config"
	"github.com/cyllective/egress0r/internal/core/check"
	"github.com/cyllective/egress0r/internal/core/factory"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/sanity"
)

type fakeCheck struct {
	name   model.CheckName
	msgs   []model.Message
	ran    *[]model.CheckName
	closed bool
}

func (f *fakeCheck) Name() model.CheckName { return f.name }

func (f *fakeCheck) StartMessage() string { return "start " + string(f.name) }

func (f *fakeCheck) Outcomes(ctx context.Context) iter.Seq[model.Message] {
	return func(yield func(model.Message) bool) {
		*f.ran = append(*f.ran, f.name)
		for _, m := range f.msgs {
			if !yield(m) {
				return
			}
		}
	}
}

func (f *fakeCheck) Close() error {
	f.closed = true
	return nil
}

// recorder 记录调用序列的 Reporter
type recorder struct {
	events  []string
	summary model.Summary
	failOn  string
}

func (r *recorder) Begin(_ context.Context, name model.CheckName, start string) error {
	r.events = append(r.events, "begin:"+start)
	return nil
}

func (r *recorder) Report(_ context.Context, name model.CheckName, msg model.Message) error {
	if msg.Text == r.failOn {
		return errors.New("report failed")
	}
	r.events = append(r.events, string(name)+":"+msg.Text)
	return nil
}

func (r *recorder) End(_ context.Context, name model.CheckName) error {
	r.events = append(r.events, "end:"+string(name))
	return nil
}

func (r *recorder) Summarize(_ context.Context, summary model.Summary) error {
	r.summary = summary
	return nil
}

func fakeManager(ran *[]model.CheckName, built map[model.CheckName]*fakeCheck) *CheckManager {
	m := NewCheckManager()
	for _, name := range model.CheckOrder {
		m.Register(name, func(cfg *config.Config, caps model.NetworkCapabilities) (check.Check, error) {
			c := &fakeCheck{
				name: name,
				ran:  ran,
				msgs: []model.Message{model.Positive("ok %s", name), model.Negative("fail %s", name)},
			}
			built[name] = c
			return c, nil
		})
	}
	return m
}

func TestCheckManager_RunsEnabledChecksInOrder(t *testing.T) {
	var ran []model.CheckName
	built := map[model.CheckName]*fakeCheck{}
	m := fakeManager(&ran, built)

	cfg := &config.Config{Check: config.CheckConfig{Port: true, DNS: true, FTP: true}}
	rep := &recorder{}
	summary, err := m.Run(context.Background(), cfg, model.NetworkCapabilities{IPv4: true}, rep)
	require.NoError(t, err)

	assert.Equal(t, []model.CheckName{model.CheckDNS, model.CheckFTP, model.CheckPort}, ran)
	assert.Equal(t, model.Summary{Successful: 3, Failed: 3}, summary)
	assert.Equal(t, summary, rep.summary)
	assert.Equal(t, []string{
		"begin:start dns", "dns:ok dns", "dns:fail dns", "end:dns",
		"begin:start ftp", "ftp:ok ftp", "ftp:fail ftp", "end:ftp",
		"begin:start port", "port:ok port", "port:fail port", "end:port",
	}, rep.events)
	for _, c := range built {
		assert.True(t, c.closed)
	}
}

func TestCheckManager_ConfigErrorAbortsBeforeTraffic(t *testing.T) {
	var ran []model.CheckName
	built := map[model.CheckName]*fakeCheck{}
	m := fakeManager(&ran, built)
	m.Register(model.CheckHTTP, func(*config.Config, model.NetworkCapabilities) (check.Check, error) {
		return nil, &model.ConfigError{Component: "HTTPVerbsCheck", Field: "verbs", Value: "TRACE"}
	})

	cfg := &config.Config{Check: config.CheckConfig{DNS: true, HTTP: true, Port: true}}
	_, err := m.Run(context.Background(), cfg, model.NetworkCapabilities{IPv4: true}, &recorder{})
	require.ErrorIs(t, err, model.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "http")
	assert.Empty(t, ran)
	assert.True(t, built[model.CheckDNS].closed)
}

func TestCheckManager_ReportErrorStops(t *testing.T) {
	var ran []model.CheckName
	m := fakeManager(&ran, map[model.CheckName]*fakeCheck{})

	cfg := &config.Config{Check: config.CheckConfig{DNS: true, ICMP: true}}
	_, err := m.Run(context.Background(), cfg, model.NetworkCapabilities{IPv4: true}, &recorder{failOn: "ok dns"})
	require.Error(t, err)
	assert.Equal(t, []model.CheckName{model.CheckDNS}, ran)
}

func TestCheckManager_CancelledContext(t *testing.T) {
	var ran []model.CheckName
	m := fakeManager(&ran, map[model.CheckName]*fakeCheck{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &config.Config{Check: config.CheckConfig{DNS: true}}
	_, err := m.Run(ctx, cfg, model.NetworkCapabilities{IPv4: true}, &recorder{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ran)
}

func TestCheckManager_DefaultBuilders(t *testing.T) {
	m := NewCheckManager()
	for _, name := range model.CheckOrder {
		_, err := m.Get(name)
		assert.NoError(t, err)
	}
	_, err := m.Get(model.CheckSanity)
	assert.Error(t, err)
	assert.Len(t, factory.Builders(), len(model.CheckOrder))
}

func TestEnabledChecks(t *testing.T) {
	cfg := &config.Config{Check: config.CheckConfig{Port: true, SMTP: true}}
	assert.Equal(t, []model.CheckName{model.CheckSMTP, model.CheckPort}, EnabledChecks(cfg))
	assert.Len(t, model.CheckOrder, 6)
}

func TestRunSanity(t *testing.T) {
	lister := func(context.Context) (psnet.InterfaceStatList, error) {
		return psnet.InterfaceStatList{{Name: "eth0", Addrs: psnet.InterfaceAddrList{{Addr: "2001:db8::5/64"}}}}, nil
	}
	rep := &recorder{}
	caps, err := RunSanity(context.Background(), sanity.NewChecker(config.OverrideConfig{}, lister), rep)
	require.NoError(t, err)
	assert.Equal(t, model.NetworkCapabilities{IPv6: true}, caps)
	assert.Equal(t, []string{
		"begin:" + sanity.StartMessage,
		"sanity:IPv6 tests enabled",
		"sanity:IPv4 tests disabled",
		"end:sanity",
	}, rep.events)

	rep = &recorder{}
	_, err = RunSanity(context.Background(), sanity.NewChecker(config.OverrideConfig{IPv6: "disable"}, lister), rep)
	assert.ErrorIs(t, err, sanity.ErrNoNetwork)
	assert.Equal(t, model.Summary{}, rep.summary)
}
