package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestDecode_JSONAndYAMLAgree(t *testing.T) {
	t.Parallel()

	js := `{
		"logging": {"level": "debug", "console": true},
		"ticker": {"tps": 50, "slow_tick": "30ms"},
		"engine": {"workers": 2},
		"storage": {"driver": "file", "path": "./hist"},
		"cron": {"timezone": "UTC", "status_report": "@every 1m"}
	}`
	ym := `
logging:
  level: debug
  console: true
ticker:
  tps: 50
  slow_tick: 30ms
engine:
  workers: 2
storage:
  driver: file
  path: ./hist
cron:
  timezone: UTC
  status_report: "@every 1m"
`
	a, err := Decode("c.json", []byte(js))
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	b, err := Decode("c.yaml", []byte(ym))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if hashConfig(a) != hashConfig(b) {
		t.Fatalf("json and yaml decode differently: %+v vs %+v", a, b)
	}
	if a.Ticker.TickPeriod() != 20*time.Millisecond {
		t.Fatalf("tick period=%v", a.Ticker.TickPeriod())
	}
}

func TestDecode_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, path, body string
	}{
		{"unknown key", "c.json", `{"ticker": {"tps": 1, "bogus": true}}`},
		{"trailing", "c.json", `{} {}`},
		{"unknown yaml key", "c.yml", "pprof:\n  enabled: true\n"},
		{"bad yaml", "c.yaml", "ticker: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tc.path, []byte(tc.body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDecode_EmptyYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.yaml", nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Ticker.TickPeriod() != time.Second/DefaultTPS {
		t.Fatalf("default tick period=%v", cfg.Ticker.TickPeriod())
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"ok", Config{Ticker: TickerConfig{TPS: 20}}, ""},
		{"tps", Config{Ticker: TickerConfig{TPS: -1}}, "ticker.tps"},
		{"slow tick", Config{Ticker: TickerConfig{SlowTick: "fast"}}, "ticker.slow_tick"},
		{"negative", Config{Scheduler: SchedulerConfig{SlowTask: "-1s"}}, "scheduler.slow_task"},
		{"workers", Config{Engine: EngineConfig{Workers: -2}}, "engine.workers"},
		{"tz", Config{Cron: CronConfig{Timezone: "Mars/Olympus"}}, "cron.timezone"},
		{"driver", Config{Storage: &StorageConfig{Driver: "redis"}}, "storage.driver"},
		{"sqlite path", Config{Storage: &StorageConfig{Driver: "sqlite"}}, "storage.path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&tc.cfg)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	old := &Config{Ticker: TickerConfig{TPS: 20}}
	cur := &Config{
		Ticker:  TickerConfig{TPS: 40},
		Storage: &StorageConfig{Driver: "file"},
	}
	sections, attrs := SummarizeConfigChange(old, cur)
	if !slices.Equal(sections, []string{"ticker", "storage"}) {
		t.Fatalf("sections=%v", sections)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}
	if s, _ := SummarizeConfigChange(cur, cur); len(s) != 0 {
		t.Fatalf("identical configs reported %v", s)
	}
}

func TestManager_LoadAndReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rimetick.json")
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write(`{"ticker": {"tps": 20}}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ticker.TPS != 20 || m.Get() != cfg {
		t.Fatalf("unexpected committed config %+v", m.Get())
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)
	ctx := context.Background()

	if ok, err := m.Reload(ctx); err != nil || ok {
		t.Fatalf("unchanged reload: ok=%v err=%v", ok, err)
	}

	write(`{"ticker": {"tps": 40}}`)
	if ok, err := m.Reload(ctx); err != nil || !ok {
		t.Fatalf("changed reload: ok=%v err=%v", ok, err)
	}
	select {
	case got := <-sub:
		if got.Ticker.TPS != 40 {
			t.Fatalf("published tps=%d", got.Ticker.TPS)
		}
	default:
		t.Fatalf("expected a published config")
	}

	m.SetValidator(func(context.Context, *Config) error { return context.Canceled })
	write(`{"ticker": {"tps": 60}}`)
	if ok, err := m.Reload(ctx); err == nil || ok {
		t.Fatalf("validator should reject: ok=%v err=%v", ok, err)
	}
	if m.Get().Ticker.TPS != 40 {
		t.Fatalf("rejected config was committed")
	}
}

func TestManager_WatchPublishesChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rimetick.yaml")
	if err := os.WriteFile(path, []byte("ticker:\n  tps: 10\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := NewManager(path)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		// rewrite until the watcher has been set up and sees a change
		if err := os.WriteFile(path, []byte("ticker:\n  tps: 30\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		select {
		case got := <-sub:
			if got.Ticker.TPS != 30 {
				t.Fatalf("published tps=%d", got.Ticker.TPS)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatalf("no config published")
		}
	}
}

func TestJitterIsBounded(t *testing.T) {
	t.Parallel()
	b := restartBackoffBase
	for range 10 {
		cur := b
		w := jitter(&b)
		if w < cur || w > cur+cur/2 {
			t.Fatalf("wait %v outside [%v, %v]", w, cur, cur+cur/2)
		}
	}
	if b != restartBackoffMax {
		t.Fatalf("backoff=%v, want cap %v", b, restartBackoffMax)
	}
}
