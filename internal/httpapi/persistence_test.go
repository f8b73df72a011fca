package httpapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/store/sqlite"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/db"
	"github.com/BrandonDHaskell/Cerberus/server/internal/httpapi"
	"github.com/BrandonDHaskell/Cerberus/server/internal/timeutil"
)

// bootSQLite builds a server over the database at path, the way main does.
func bootSQLite(t *testing.T, path string, sensor *fakeSensor) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	sqlDB, err := db.Open(ctx, db.Config{Path: path})
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	writer := db.NewWorker(sqlDB)

	engine := service.NewEngine(service.Config{SecondFactor: true}, service.Dependencies{
		Fingerprint: sensor,
		Pin:         &fakePin{},
		Identities:  sqlite.NewIdentityStore(sqlDB, writer),
		Enrollments: sqlite.NewEnrollmentStore(sqlDB, writer),
		Detections:  sqlite.NewDetectionStore(sqlDB, writer),
		Clock:       timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Logger:      zap.NewNop(),
	})
	if err := engine.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger: zap.NewNop(),
		Addr:   ":0",
		Engine: engine,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		writer.Close()
		_ = sqlDB.Close()
	})
	return ts
}

func TestFingerprintEnrollment_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cerberus.db")
	sensor := &fakeSensor{nextID: 7}

	first := bootSQLite(t, path, sensor)
	resp := do(t, http.MethodPost, first.URL+"/enroll_fingerprint", strings.NewReader(`{"name":"dave"}`), "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("enroll: expected 200, got %d", resp.StatusCode)
	}
	first.Close()

	second := bootSQLite(t, path, sensor)
	var list types.FingerprintsResponse
	decode(t, do(t, http.MethodGet, second.URL+"/fingerprints", nil, ""), &list)
	if len(list.Fingerprints) != 1 {
		t.Fatalf("expected 1 fingerprint after restart, got %+v", list.Fingerprints)
	}
	if got := list.Fingerprints[0]; got.ID != "7" || got.Name != "dave" {
		t.Errorf("unexpected fingerprint %+v", got)
	}
}
