package app

import (
	"bytes"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestRun_DBCommands_FailWithoutDatabase はDB接続を伴うコマンドが
// 到達できないDBに対してエラーを返すことを検証する。
func TestRun_DBCommands_FailWithoutDatabase(t *testing.T) {
	for _, args := range [][]string{{"serve"}, {"worker"}, {}} {
		setTestEnv(t)
		restoreDefaultLogger(t)

		var buf bytes.Buffer
		if err := Run(&buf, args); err == nil {
			t.Errorf("Run(%v) should fail when the database is unreachable", args)
		}
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("AI_API_KEY", "")
	restoreDefaultLogger(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_UnknownCommand_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	if err := Run(&buf, []string{"fetch"}); err == nil {
		t.Fatal("Run with unknown command should return error")
	}
}

func TestRun_Healthcheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("failed to parse listener address: %v", err)
	}
	t.Setenv("SERVER_PORT", port)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"healthcheck"}); err != nil {
		t.Errorf("healthcheck against a healthy server failed: %v", err)
	}
}

func TestRunHealthcheck_UnhealthyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("failed to parse listener address: %v", err)
	}

	if err := runHealthcheck(port); err == nil {
		t.Error("expected error for 503 response")
	}
}
