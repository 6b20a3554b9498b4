package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func stubDaemon(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func runCommand(t *testing.T, server *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--api", server.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSubmitCommand(t *testing.T) {
	var gotBody submitPayload
	server := stubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(jobView{ID: "job-123", TemplateRef: gotBody.TemplateRef, Target: gotBody.Target})
	})

	out, err := runCommand(t, server, "submit", "runner.zip", "--target", "android",
		"--overrides", `{"title":"Zap"}`, "--description", "a zappy game")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gotBody.TemplateRef != "runner.zip" || gotBody.Target != "android" {
		t.Errorf("payload = %+v", gotBody)
	}
	if gotBody.Description != "a zappy game" {
		t.Errorf("description = %q", gotBody.Description)
	}
	if !strings.Contains(out, "job-123") {
		t.Errorf("output = %q", out)
	}
}

func TestSubmitRejectsBadOverrides(t *testing.T) {
	server := stubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent")
	})
	_, err := runCommand(t, server, "submit", "runner.zip", "--overrides", "{broken")
	if err == nil || !strings.Contains(err.Error(), "JSON object") {
		t.Fatalf("err = %v", err)
	}
}

func TestListCommandRendersTable(t *testing.T) {
	server := stubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"jobs": []jobView{
			{ID: "aaa", TemplateRef: "runner.zip", Target: "web", Status: "ready", Result: "aaa/web/index.html", CreatedAt: time.Now()},
			{ID: "bbb", TemplateRef: "runner.zip", Target: "web", Status: "failed", ErrorMessage: "template scripts failed to compile", CreatedAt: time.Now()},
		}})
	})

	out, err := runCommand(t, server, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"aaa", "bbb", "ready", "failed to compile"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestListEmpty(t *testing.T) {
	server := stubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"jobs": []jobView{}})
	})
	out, err := runCommand(t, server, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No jobs") {
		t.Errorf("output = %q", out)
	}
}

func TestShowCommand(t *testing.T) {
	server := stubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs/job-9" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(jobView{
			ID: "job-9", TemplateRef: "runner.zip", Target: "web", Status: "ready",
			Result:    "job-9/web/index.html",
			TimingsMS: map[string]int64{"build": 42000},
		})
	})

	out, err := runCommand(t, server, "show", "job-9")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"job-9", "runner.zip", "index.html", "build", "42s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCancelCommandSurfacesDaemonError(t *testing.T) {
	server := stubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "job not found"})
	})
	_, err := runCommand(t, server, "cancel", "nope")
	if err == nil || !strings.Contains(err.Error(), "job not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestStatusCommand(t *testing.T) {
	server := stubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		status := daemonStatus{Jobs: map[string]int{"queued": 2, "ready": 5}}
		status.Cache.Entries = 3
		status.Cache.UsedBytes = 4 << 20
		status.Cache.DiskFreeBytes = 10 << 30
		status.Cache.DiskTotalBytes = 20 << 30
		status.Cache.Root = "/tmp/cache"
		json.NewEncoder(w).Encode(status)
	})

	out, err := runCommand(t, server, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"queued   2", "ready    5", "entries  3", "4.0 MiB", "/tmp/cache"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
