package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const inbox = `From noreply@github.com Tue Jan  2 00:00:00 2024
From: GitHub <noreply@github.com>
Subject: Build passed
Date: Tue, 02 Jan 2024 00:00:00 +0000

All checks passed

From billing@suspicious-domain.com Wed Jan  3 00:00:00 2024
From: Netflix <billing@suspicious-domain.com>
Subject: Your Netflix subscription is expiring
Date: Wed, 03 Jan 2024 00:00:00 +0000

Click here immediately to avoid suspension
`

const message = "From: GitHub <noreply@github.com>\r\n" +
	"Subject: Build passed\r\n" +
	"Date: Tue, 14 Nov 2023 22:13:20 +0000\r\n" +
	"\r\n" +
	"All checks passed on main.\r\n"

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// testConfig writes a config keeping every file inside the test directory
func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	mboxPath := writeFile(t, filepath.Join(dir, "inbox.mbox"), inbox)
	cfg := strings.Join([]string{
		"source:",
		"  type: mbox",
		"mbox:",
		"  path: " + mboxPath,
		"cache:",
		"  type: memory",
		"  cleanup_frequency: 0s",
		"history:",
		"  path: " + filepath.Join(dir, "history.db"),
	}, "\n") + "\n"
	return writeFile(t, filepath.Join(dir, "config.yaml"), cfg)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")

	if _, err := execute(t, "config", "init", path); err != nil {
		t.Fatalf("config init: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "filter_type: postfix") {
		t.Errorf("config missing defaults:\n%s", data)
	}

	if _, err := execute(t, "config", "init", path); err == nil {
		t.Error("expected error when file exists")
	}
	if _, err := execute(t, "config", "init", "--force", path); err != nil {
		t.Errorf("config init --force: %v", err)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	cfgPath := testConfig(t)
	t.Setenv("TRUST_FILTER_OPENAI_API_KEY", "sk-secret")

	out, err := execute(t, "--config", cfgPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "sk-secret") || !strings.Contains(out, "********") {
		t.Errorf("secret not masked:\n%s", out)
	}
}

func TestAnalyzeThenHistory(t *testing.T) {
	cfgPath := testConfig(t)
	msgPath := writeFile(t, filepath.Join(t.TempDir(), "build.eml"), message)

	out, err := execute(t, "--config", cfgPath, "-o", "json", "analyze", msgPath)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var verdict struct {
		ID         string `json:"id"`
		TrustScore int    `json:"trustScore"`
		Timestamp  string `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(out), &verdict); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if verdict.ID != "build.eml" || verdict.TrustScore != 85 || verdict.Timestamp != "11/14/2023, 10:13:20 PM" {
		t.Errorf("verdict = %+v", verdict)
	}

	out, err = execute(t, "--config", cfgPath, "-o", "json", "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var records []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(records) != 1 || records[0]["id"] != "build.eml" {
		t.Errorf("history = %v", records)
	}

	out, err = execute(t, "--config", cfgPath, "history", "--category", "threats")
	if err != nil {
		t.Fatalf("history text: %v", err)
	}
	if !strings.Contains(out, "No analyzed messages match.") {
		t.Errorf("history text = %q", out)
	}
}

func TestScanMbox(t *testing.T) {
	cfgPath := testConfig(t)

	out, err := execute(t, "--config", cfgPath, "-o", "json", "scan", "--sort", "threat")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var report struct {
		Emails []struct {
			Sender      string `json:"sender"`
			ThreatLevel string `json:"threatLevel"`
		} `json:"emails"`
		TotalFetched int `json:"totalFetched"`
		Stats        struct {
			ThreatCount int `json:"threatCount"`
		} `json:"stats"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if report.TotalFetched != 2 || report.Stats.ThreatCount != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Emails) != 2 || report.Emails[0].ThreatLevel != "Ultra Threat" {
		t.Errorf("emails = %+v", report.Emails)
	}

	out, err = execute(t, "--config", cfgPath, "scan")
	if err != nil {
		t.Fatalf("scan text: %v", err)
	}
	if !strings.Contains(out, "Threats: 1") || !strings.Contains(out, "Build passed") {
		t.Errorf("scan text = %q", out)
	}
}

func TestUnsupportedOutput(t *testing.T) {
	if _, err := execute(t, "-o", "xml", "history"); err == nil {
		t.Error("expected error for unsupported output format")
	}
}
