package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"tickwork/internal/config"
	"tickwork/internal/notify"
	"tickwork/internal/storage"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func baseYAML(dir string) string {
	return `
logging:
  level: error
scheduler:
  timezone: UTC
  shutdown_timeout: 5s
storage:
  driver: file
  path: ` + filepath.Join(dir, "state") + `
notify:
  telegram:
    enabled: true
    token: "1:test"
    chat_id: 42
jobs:
  - name: tick
    schedule: 1s
    command: echo tick
  - name: nightly
    schedule: "0 3 * * *"
    command: "true"
  - name: fail
    schedule: "0 4 * * *"
    command: echo broken; exit 3
  - name: past
    schedule: "2001-01-01"
    command: "true"
  - name: off
    schedule: 1m
    command: "true"
    enabled: false
`
}

type testDaemon struct {
	*Daemon
	fc     *clockwork.FakeClock
	dir    string
	alerts chan string
	states chan string
}

func newTestDaemon(t *testing.T) *testDaemon {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tickwork.yaml")
	if err := os.WriteFile(path, []byte(baseYAML(dir)), 0o644); err != nil {
		t.Fatal(err)
	}
	td := &testDaemon{
		fc:     clockwork.NewFakeClockAt(epoch),
		dir:    dir,
		alerts: make(chan string, 8),
		states: make(chan string, 32),
	}
	d, err := New(context.Background(), path,
		WithClock(td.fc),
		WithSender(notify.SenderFunc(func(_ context.Context, text string) error {
			td.alerts <- text
			return nil
		})),
		WithSdNotify(func(_ bool, state string) (bool, error) {
			select {
			case td.states <- state:
			default:
			}
			return true, nil
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	td.Daemon = d
	return td
}

func names(d *Daemon) []string {
	var out []string
	for _, st := range d.Status() {
		out = append(out, st.Name)
	}
	return out
}

func waitRuns(t *testing.T, st storage.Store, job string, n int) []storage.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		runs, err := st.ListRuns(context.Background(), storage.Query{Job: job})
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) >= n {
			return runs
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s: %d runs recorded, want %d", job, len(runs), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewSchedulesEnabledFutureJobs(t *testing.T) {
	t.Parallel()
	td := newTestDaemon(t)
	defer td.Close()

	if got := strings.Join(names(td.Daemon), ","); got != "fail,nightly,tick" {
		t.Fatalf("jobs = %s", got)
	}
	next, ok := td.Scheduler().NextFire()
	if !ok || !next.Equal(epoch.Add(time.Second)) {
		t.Fatalf("NextFire = %s, %v", next, ok)
	}
}

func TestScheduledRunIsRecorded(t *testing.T) {
	t.Parallel()
	td := newTestDaemon(t)
	defer td.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := td.fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	td.fc.Advance(time.Second)

	run := waitRuns(t, td.Store(), "tick", 1)[0]
	if !run.OK || run.Trigger != "schedule" || run.Output != "tick\n" || run.ID == "" {
		t.Fatalf("run = %+v", run)
	}
	if next, _ := td.Scheduler().NextFire(); !next.Equal(epoch.Add(2 * time.Second)) {
		t.Fatalf("next fire after run = %s", next)
	}
}

func TestRunServesAndAlertsOnFailure(t *testing.T) {
	t.Parallel()
	td := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- td.Run(ctx) }()

	waitState(t, td.states, "READY=1")
	if err := td.RunNow(context.Background(), "fail"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	select {
	case text := <-td.alerts:
		if !strings.Contains(text, "job fail failed") || !strings.Contains(text, "(manual)") || !strings.Contains(text, "broken") {
			t.Fatalf("alert = %q", text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no alert sent")
	}
	run := waitRuns(t, td.Store(), "fail", 1)[0]
	if run.OK || run.ExitCode != 3 || run.Trigger != "manual" {
		t.Fatalf("run = %+v", run)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
	waitState(t, td.states, "STOPPING=1")
}

func waitState(t *testing.T, states <-chan string, want string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("systemd state %s not sent", want)
		}
	}
}

func TestApplyReconcilesJobs(t *testing.T) {
	t.Parallel()
	td := newTestDaemon(t)
	defer td.Close()

	tickBefore, _ := td.Scheduler().Lookup("tick")
	failBefore, _ := td.Scheduler().Lookup("fail")

	body := baseYAML(td.dir)
	body = strings.Replace(body, "schedule: 1s", "schedule: 2s", 1)
	body = strings.Replace(body, "command: echo broken; exit 3", "command: exit 4", 1)
	body = strings.Replace(body, "  - name: nightly\n    schedule: \"0 3 * * *\"\n    command: \"true\"\n", "", 1)
	body += "  - name: fresh\n    schedule: 5m\n    command: \"true\"\n"
	cfg, err := config.Decode("tickwork.yaml", []byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatal(err)
	}
	td.apply(cfg)

	got := names(td.Daemon)
	sort.Strings(got)
	if strings.Join(got, ",") != "fail,fresh,tick" {
		t.Fatalf("jobs after reload = %v", got)
	}
	tickAfter, _ := td.Scheduler().Lookup("tick")
	if tickAfter != tickBefore {
		t.Fatal("schedule-only change replaced the job")
	}
	if next, _ := tickAfter.NextInvocation(); !next.Equal(epoch.Add(2 * time.Second)) {
		t.Fatalf("tick next = %s", next)
	}
	if failAfter, _ := td.Scheduler().Lookup("fail"); failAfter == failBefore {
		t.Fatal("command change kept the old job")
	}
}

func TestStorageConfig(t *testing.T) {
	t.Parallel()
	if _, on, err := StorageConfig(&config.Config{}); on || err != nil {
		t.Fatalf("nil storage = %v, %v", on, err)
	}
	if _, _, err := StorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "sqlite"}}); err == nil {
		t.Fatal("sqlite without path accepted")
	}
	sc, on, err := StorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "SQLite", Path: "x.db", BusyTimeout: "3s"}})
	if err != nil || !on || sc.Driver != "sqlite" || sc.BusyTimeout != 3*time.Second {
		t.Fatalf("StorageConfig = %+v, %v, %v", sc, on, err)
	}
}
