package utils

import (
	"testing"
)

func TestEnsureSuffix(t *testing.T) {
	if got := EnsureSuffix("app", ".git"); got != "app.git" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := EnsureSuffix("app.git", ".git"); got != "app.git" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"":                      "''",
		"/var/www/html":         "/var/www/html",
		"/srv/my app":           "'/srv/my app'",
		"it's":                  `'it'\''s'`,
		"/tmp/x; rm -rf /":      "'/tmp/x; rm -rf /'",
		"/opt/app.bak.2024-01Z": "/opt/app.bak.2024-01Z",
	}
	for in, want := range cases {
		if got := ShellQuote(in); got != want {
			t.Errorf("ShellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Fatalf("unexpected: %q", got)
	}
	if got := Truncate("short", 8); got != "short" {
		t.Fatalf("unexpected: %q", got)
	}
}
