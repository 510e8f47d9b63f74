package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "gamekeeper.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	st := s.Snapshot()
	if st.LastServerVersion != "0.0.0" {
		t.Fatalf("version default: %q", st.LastServerVersion)
	}
	if !st.EnableLogging || !st.CheckUpdates || !st.EnableBackups || !st.EnableAutoRestart {
		t.Fatalf("boolean defaults wrong: %+v", st)
	}
	if st.EnableSchedule || st.AutoStart || st.EnableDiscord {
		t.Fatalf("boolean defaults wrong: %+v", st)
	}
	if st.RestartInterval != 12 || st.MaxBackups != 3 || st.ServerMemory != "8G" {
		t.Fatalf("value defaults wrong: %+v", st)
	}
}

func TestOpenMergesPartialFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gamekeeper.json")
	data := `{"server_memory":"4G","enable_backups":false,"last_server_version":"1.2.3"}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	st := s.Snapshot()
	if st.ServerMemory != "4G" || st.EnableBackups || st.LastServerVersion != "1.2.3" {
		t.Fatalf("present keys not honored: %+v", st)
	}
	// absent keys keep defaults
	if st.MaxBackups != 3 || !st.CheckUpdates || st.RestartInterval != 12 {
		t.Fatalf("defaults overwritten: %+v", st)
	}
}

func TestMutatePersistsAndRoundTripsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gamekeeper.json")
	data := `{"server_memory":"2G","dark_mode":true,"some_future_key":"keep-me"}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SetVersion("2.0.1"); err != nil {
		t.Fatalf("set version: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["last_server_version"] != "2.0.1" {
		t.Fatalf("version not persisted: %v", m["last_server_version"])
	}
	if m["some_future_key"] != "keep-me" || m["dark_mode"] != true {
		t.Fatalf("unknown keys dropped: %v", m)
	}
	if m["server_memory"] != "2G" {
		t.Fatalf("present key lost: %v", m["server_memory"])
	}
}

func TestSnapshotSeesWholeMutation(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "gamekeeper.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = s.Mutate(func(st *Settings) {
				st.ServerMemory = "16G"
				st.MaxBackups = 9
			})
		}
	}()
	for i := 0; i < 200; i++ {
		st := s.Snapshot()
		// either fully old or fully new, never mixed
		oldPair := st.ServerMemory == "8G" && st.MaxBackups == 3
		newPair := st.ServerMemory == "16G" && st.MaxBackups == 9
		if !oldPair && !newPair {
			t.Fatalf("torn snapshot: %+v", st)
		}
	}
	<-done
}

func TestExternalEditStillReloadsAfterMutate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gamekeeper.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// a persisted mutation must not pin its values over later file edits
	if err := s.SetVersion("1.0.0"); err != nil {
		t.Fatalf("set version: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Settings, 4)
	if err := s.Watch(ctx, func(st Settings) { got <- st }); err != nil {
		t.Fatalf("watch: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m["server_memory"] = "16G"
	edited, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, edited, 0o644); err != nil {
		t.Fatalf("external edit: %v", err)
	}

	select {
	case st := <-got:
		if st.ServerMemory != "16G" {
			t.Fatalf("external edit ignored after Mutate: got %q, want 16G", st.ServerMemory)
		}
		if st.LastServerVersion != "1.0.0" {
			t.Fatalf("mutated value lost: %+v", st)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
	if s.Snapshot().ServerMemory != "16G" {
		t.Fatalf("store not updated: %+v", s.Snapshot())
	}
}

func TestWatchReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gamekeeper.json")
	if err := os.WriteFile(path, []byte(`{"server_memory":"4G"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Settings, 4)
	if err := s.Watch(ctx, func(st Settings) { got <- st }); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"server_memory":"6G"}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	select {
	case st := <-got:
		if st.ServerMemory != "6G" {
			t.Fatalf("reloaded settings: %+v", st)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
	if s.Snapshot().ServerMemory != "6G" {
		t.Fatalf("store not updated: %+v", s.Snapshot())
	}
}
