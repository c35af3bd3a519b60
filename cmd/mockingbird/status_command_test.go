package main

import (
	"encoding/json"
	"testing"
)

func TestStatusRendersOnlineSections(t *testing.T) {
	env := setupCLITestEnv(t)
	seedJob(t, env, "alpha", "es")

	stdout, _, err := runCLI(t, []string{"status"}, env.addr, env.configPath)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	requireContains(t, stdout, "System Status")
	requireContains(t, stdout, "Connected but workflow stopped")
	requireContains(t, stdout, "Hardware")
	requireContains(t, stdout, "Pipeline Stages")
	requireContains(t, stdout, "Transcribers")
	requireContains(t, stdout, "Queue Status")
	requireContains(t, stdout, "Pending")
}

func TestStatusJSONOnline(t *testing.T) {
	env := setupCLITestEnv(t)
	seedJob(t, env, "alpha", "es")

	stdout, _, err := runCLI(t, []string{"status", "--json"}, env.addr, env.configPath)
	if err != nil {
		t.Fatalf("status --json failed: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if _, ok := resp["queue"]; !ok {
		t.Fatal("expected queue key in status JSON")
	}
	if _, ok := resp["hardware"]; !ok {
		t.Fatal("expected hardware key in status JSON")
	}
}

func TestStatusFallsBackWhenDaemonDown(t *testing.T) {
	env := setupCLITestEnv(t)
	seedJob(t, env, "alpha", "es")

	stdout, _, err := runCLI(t, []string{"status"}, unreachableAddr, env.configPath)
	if err != nil {
		t.Fatalf("offline status failed: %v", err)
	}
	requireContains(t, stdout, "Not running")
	requireContains(t, stdout, "Dependencies")
	requireContains(t, stdout, "Queue Status")
	requireContains(t, stdout, "Pending")
}

func TestStatusJSONOffline(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"status", "--json"}, unreachableAddr, env.configPath)
	if err != nil {
		t.Fatalf("offline status --json failed: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if running, ok := resp["running"].(bool); !ok || running {
		t.Fatalf("expected running=false, got %v", resp["running"])
	}
}
