package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"goalplanner/internal/config"
	"goalplanner/internal/core"
	"goalplanner/internal/remote/memory"
	"goalplanner/internal/remote/rest"
)

func TestBackendType_IsValid(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		if !bt.IsValid() {
			t.Errorf("%s should be valid", bt)
		}
	}
	if BackendType("sqlite").IsValid() {
		t.Error("sqlite is not a remote backend")
	}
	if got := strings.Join(GetBackendTypeStrings(), ","); got != "rest,sheets,memory" {
		t.Errorf("GetBackendTypeStrings() = %s", got)
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{RemoteBackend: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg, err := FromAppConfig(&config.Config{
		RemoteBackend: "rest",
		GoalsAPIURL:   "http://localhost:3000",
		RemoteTimeout: 2 * time.Second,
		SeedFile:      "./data/db.json",
	})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != RESTBackend || cfg.Timeout != 2*time.Second || cfg.SeedFile != "./data/db.json" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"rest with url", Config{Type: RESTBackend, GoalsAPIURL: "http://x"}, false},
		{"rest without url", Config{Type: RESTBackend}, true},
		{"memory", Config{Type: MemoryBackend}, false},
		{"sheets without id", Config{Type: SheetsBackend, GoogleServiceAccountJSON: "{}"}, true},
		{"sheets without credentials", Config{Type: SheetsBackend, GoogleSpreadsheetID: "abc"}, true},
		{"sheets complete", Config{Type: SheetsBackend, GoogleSpreadsheetID: "abc", GoogleServiceAccountJSON: "{}"}, false},
		{"unknown", Config{Type: "bogus"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFactory_CreateBackend(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	t.Run("rest", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: RESTBackend, GoalsAPIURL: "http://localhost:3000", Timeout: time.Second})
		if err != nil {
			t.Fatalf("CreateBackend() error = %v", err)
		}
		if _, ok := res.Client.(*rest.Client); !ok {
			t.Errorf("expected *rest.Client, got %T", res.Client)
		}
	})

	t.Run("memory seeded from file", func(t *testing.T) {
		seed := filepath.Join(t.TempDir(), "db.json")
		writeFile(t, seed, `{"goals":[{"id":"1","name":"Bike","targetAmount":300,"savedAmount":10,"deadline":"2030-01-01"}]}`)

		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend, SeedFile: seed})
		if err != nil {
			t.Fatalf("CreateBackend() error = %v", err)
		}
		if _, ok := res.Client.(*memory.Store); !ok {
			t.Fatalf("expected *memory.Store, got %T", res.Client)
		}
		goals, err := res.Client.FetchAll(ctx)
		if err != nil || len(goals) != 1 || goals[0].Name != "Bike" {
			t.Errorf("FetchAll() = %+v, %v", goals, err)
		}
	})

	t.Run("memory with corrupt seed", func(t *testing.T) {
		seed := filepath.Join(t.TempDir(), "db.json")
		writeFile(t, seed, `{not json`)
		if _, err := f.CreateBackend(ctx, Config{Type: MemoryBackend, SeedFile: seed}); err == nil {
			t.Error("expected error for corrupt seed")
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		if _, err := f.CreateBackend(ctx, Config{Type: SheetsBackend}); err == nil {
			t.Error("expected validation error")
		}
	})
}

type snapshotStub struct {
	goals []core.Goal
	err   error
}

func (s snapshotStub) LoadSnapshot(context.Context) ([]core.Goal, error) {
	return s.goals, s.err
}

func TestFallback(t *testing.T) {
	ctx := context.Background()
	seed := filepath.Join(t.TempDir(), "db.json")
	writeFile(t, seed, `{"goals":[{"id":"s1","name":"Seed","targetAmount":1,"deadline":"2030-01-01"}]}`)
	snap := []core.Goal{{ID: "n1", Name: "Snap", TargetAmount: core.MoneyFromInt(1), Deadline: core.NewDate(2030, 1, 1)}}

	tests := []struct {
		name      string
		snapshots SnapshotLoader
		seedFile  string
		wantID    string
		wantNil   bool
	}{
		{"snapshot wins", snapshotStub{goals: snap}, seed, "n1", false},
		{"empty snapshot falls through to seed", snapshotStub{goals: []core.Goal{}}, seed, "s1", false},
		{"snapshot error falls through to seed", snapshotStub{err: errors.New("locked")}, seed, "s1", false},
		{"no snapshot store", nil, seed, "s1", false},
		{"nothing available", snapshotStub{}, filepath.Join(t.TempDir(), "missing.json"), "", true},
		{"no seed configured", nil, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fallback(ctx, tt.snapshots, tt.seedFile, nil)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("expected nil fallback, got %+v", got)
				}
				return
			}
			if len(got) != 1 || got[0].ID != tt.wantID {
				t.Errorf("Fallback() = %+v, want id %s", got, tt.wantID)
			}
		})
	}
}

func TestFallback_EmptySeedIsValid(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "db.json")
	writeFile(t, seed, `{"goals":[]}`)
	got := Fallback(context.Background(), nil, seed, nil)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil fallback, got %#v", got)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
