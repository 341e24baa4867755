// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

type mockChecker struct {
	name   string
	result CheckResult
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(_ context.Context) CheckResult {
	return m.result
}

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	resp := m.Health(context.Background())

	if resp.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", resp.Status)
	}
	if resp.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", resp.Version)
	}
	if resp.Checks != nil {
		t.Error("expected no checks")
	}
}

func TestManager_Health_WorstWins(t *testing.T) {
	tests := []struct {
		name    string
		results []Status
		want    Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy beats degraded", []Status{StatusUnhealthy, StatusDegraded}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("")
			for i, s := range tt.results {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), result: CheckResult{Status: s}})
			}
			if got := m.Health(context.Background()).Status; got != tt.want {
				t.Errorf("Health() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestManager_ServeHTTP(t *testing.T) {
	pingErr := error(nil)
	m := NewManager("v1")
	m.RegisterChecker(NewPingChecker("database", func(context.Context) error { return pingErr }))

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	pingErr = errors.New("database is locked")
	rec = httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checks["database"].Error != "database is locked" {
		t.Errorf("unexpected check result: %+v", resp.Checks["database"])
	}
}

func TestDirChecker(t *testing.T) {
	dir := t.TempDir()

	if got := NewDirChecker("scratch", filepath.Join(dir, "missing")).Check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("missing dir: got %+v", got)
	}
	if got := NewDirChecker("scratch", dir).Check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("writable dir: got %+v", got)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if got := NewDirChecker("scratch", file).Check(context.Background()); got.Status != StatusDegraded {
		t.Errorf("file instead of dir: got %+v", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("probe file left behind: %v", entries)
	}
}
