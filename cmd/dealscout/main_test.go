package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hession/dealscout/internal/config"
)

func TestLogConfigInfo(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Ebay.AppID = "test-app-id-12345"

	// Should not panic
	logConfigInfo(cfg)
}

func TestLogConfigInfo_NoProviders(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = false

	// Should not panic
	logConfigInfo(cfg)
}

func TestVersion(t *testing.T) {
	if version != "0.1.0" {
		t.Errorf("Expected version '0.1.0', got '%s'", version)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out.String(), "DealScout v0.1.0") {
		t.Errorf("Unexpected version output: %q", out.String())
	}
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EBAY_APP_ID", "")
	t.Setenv("RAPIDAPI_KEY", "")
	t.Setenv("SERPAPI_KEY", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config-dir", dir, "config"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("config command failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "DealScout Configuration") {
		t.Errorf("Expected configuration dump, got %q", got)
	}
	if !strings.Contains(got, dir) {
		t.Errorf("Expected config path under %s, got %q", dir, got)
	}
}

func TestSearchCommand_RequiresKeyword(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"search"})

	if err := cmd.Execute(); err == nil {
		t.Error("search without a keyword should fail")
	}
}
