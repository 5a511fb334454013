package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestUnmarshalSubKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	doc := "scheme:\n  host: 127.0.0.1\n  port: 9443\n  total: 64\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	l, err := New(path, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var got struct {
		Host  string `mapstructure:"host"`
		Port  int    `mapstructure:"port"`
		Total int    `mapstructure:"total"`
	}
	if err := l.Unmarshal("scheme", &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Host != "127.0.0.1" || got.Port != 9443 || got.Total != 64 {
		t.Errorf("got %+v", got)
	}
}

func TestNewMissingFile(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
