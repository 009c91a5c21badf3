package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleLog = "=== setup started ===\n" +
	"2026-05-04 09:30:00 [INFO] checking dependencies\n" +
	"2026-05-04 09:30:01 [ERROR] connect ECONNREFUSED 127.0.0.1:11434\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiagnoseLocal(t *testing.T) {
	path := writeTemp(t, "latest.log", sampleLog)

	out, err := execute(t, "diagnose", "--force=false", "--remote=false", path)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if !strings.Contains(out, "1. Ollama Connection Refused") {
		t.Errorf("output = %q", out)
	}
}

func TestDiagnoseLocal_GateAndForce(t *testing.T) {
	path := writeTemp(t, "chat.txt", "it says connect ECONNREFUSED 127.0.0.1:11434, help")

	out, err := execute(t, "diagnose", "--force=false", "--remote=false", path)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if !strings.Contains(out, "does not look like a product log") {
		t.Errorf("gated output = %q", out)
	}

	out, err = execute(t, "diagnose", "--force", "--remote=false", path)
	if err != nil {
		t.Fatalf("diagnose --force: %v", err)
	}
	if !strings.Contains(out, "Ollama Connection Refused") {
		t.Errorf("forced output = %q", out)
	}
}

func TestTicketsList(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tickets":[{"thread_id":"th-1","user_id":"alice","title":"Broken","status":"open",` +
			`"created_at":"2026-05-04T09:30:00Z","last_activity_at":"2026-05-04T09:30:00Z"}],"total":3}`))
	}))
	defer srv.Close()
	t.Setenv("HELPDESK_API_URL", srv.URL)
	t.Setenv("HELPDESK_API_KEY", "secret")

	out, err := execute(t, "tickets", "list", "--status", "open", "--user", "", "--limit", "1")
	if err != nil {
		t.Fatalf("tickets list: %v", err)
	}
	if gotPath != "/api/tickets?limit=1&status=open" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q", gotAuth)
	}
	if !strings.Contains(out, "th-1") || !strings.Contains(out, "1 of 3 tickets") {
		t.Errorf("output = %q", out)
	}
}

func TestSweep_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"scheduler not configured"}`))
	}))
	defer srv.Close()
	t.Setenv("HELPDESK_API_URL", srv.URL)

	_, err := execute(t, "sweep")
	if err == nil || !strings.Contains(err.Error(), "HTTP 503: scheduler not configured") {
		t.Errorf("err = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := writeTemp(t, "bad.yaml", "store:\n  path: /tmp/x.db\n")
	if _, err := execute(t, "config", "validate", bad); err == nil {
		t.Error("expected error for config without discord settings")
	}

	good := writeTemp(t, "good.yaml", "discord:\n  token: tok\n  support_channel_id: \"123\"\n")
	out, err := execute(t, "config", "validate", good)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "config is valid") {
		t.Errorf("output = %q", out)
	}
}
