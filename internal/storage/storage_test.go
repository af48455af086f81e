package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "tickwork/pkg/logx"
)

func openTest(t *testing.T, driver string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "tickwork.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if st != nil || err != nil {
			t.Fatalf("Open(%q) = %v, %v", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver without path accepted")
	}
}

func TestRunsRoundTrip(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openTest(t, driver)
			base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

			var ids []string
			for i, job := range []string{"backup", "heartbeat", "backup"} {
				errMsg := ""
				if i > 0 {
					errMsg = "exit status"
				}
				r, err := st.AppendRun(ctx, Run{
					Job:       job,
					Trigger:   "schedule",
					StartedAt: base.Add(time.Duration(i) * time.Minute),
					Duration:  1500 * time.Millisecond,
					ExitCode:  i,
					OK:        i == 0,
					Error:     errMsg,
					Output:    "line\n",
				})
				if err != nil {
					t.Fatalf("AppendRun: %v", err)
				}
				if r.ID == "" {
					t.Fatal("AppendRun did not assign an ID")
				}
				ids = append(ids, r.ID)
			}

			all, err := st.ListRuns(ctx, Query{})
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			if len(all) != 3 || all[0].ID != ids[2] || all[2].ID != ids[0] {
				t.Fatalf("ListRuns order = %+v", all)
			}
			first := all[2]
			if !first.StartedAt.Equal(base) || first.Duration != 1500*time.Millisecond ||
				!first.OK || first.Trigger != "schedule" || first.Output != "line\n" {
				t.Fatalf("round trip = %+v", first)
			}
			if all[0].ExitCode != 2 || all[0].OK || all[0].Error != "exit status" {
				t.Fatalf("newest = %+v", all[0])
			}

			backups, err := st.ListRuns(ctx, Query{Job: "backup", Limit: 1})
			if err != nil {
				t.Fatalf("ListRuns(job): %v", err)
			}
			if len(backups) != 1 || backups[0].ID != ids[2] {
				t.Fatalf("ListRuns(job backup, 1) = %+v", backups)
			}
		})
	}
}

func TestDedup(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openTest(t, driver)
			until := time.Now().Add(time.Hour).Truncate(time.Millisecond)

			if _, ok, err := st.GetDedup(ctx, "k"); ok || err != nil {
				t.Fatalf("GetDedup(missing) = %v, %v", ok, err)
			}
			if err := st.PutDedup(ctx, "k", until); err != nil {
				t.Fatalf("PutDedup: %v", err)
			}
			got, ok, err := st.GetDedup(ctx, "k")
			if err != nil || !ok || !got.Equal(until) {
				t.Fatalf("GetDedup = %s, %v, %v", got, ok, err)
			}
		})
	}
}

func TestFileStoreReloadsDedup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state.json")}
	until := time.Now().Add(time.Hour).Truncate(time.Millisecond)

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.PutDedup(ctx, "live", until); err != nil {
		t.Fatal(err)
	}
	if err := st.PutDedup(ctx, "expired", time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AppendRun(ctx, Run{Job: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if got, ok, _ := st.GetDedup(ctx, "live"); !ok || !got.Equal(until) {
		t.Fatalf("live = %s, %v", got, ok)
	}
	if _, ok, _ := st.GetDedup(ctx, "expired"); ok {
		t.Fatal("expired key survived reopen")
	}
	runs, err := st.ListRuns(ctx, Query{})
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns after reopen = %v, %v", runs, err)
	}
}

func TestNewRunIDSortsByCreation(t *testing.T) {
	t.Parallel()
	now := time.Now()
	a, b := NewRunID(now), NewRunID(now)
	if !(a < b) {
		t.Fatalf("NewRunID not monotonic: %s >= %s", a, b)
	}
}
