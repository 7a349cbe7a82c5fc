package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderSystemdService_Default(t *testing.T) {
	got, err := RenderSystemdService(ServiceUnit{
		User:       "www",
		Group:      "www",
		WorkingDir: "/srv/homesite",
		Binary:     "/srv/homesite/current/homesite",
		EnvFile:    "/etc/homesite/homesite.env",
	})
	if err != nil {
		t.Fatalf("RenderSystemdService() error = %v", err)
	}

	for _, want := range []string{
		"User=www",
		"WorkingDirectory=/srv/homesite",
		"ExecStart=/srv/homesite/current/homesite serve",
		"EnvironmentFile=-/etc/homesite/homesite.env",
		"Restart=always",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Rendered unit missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "{{") {
		t.Errorf("Unrendered placeholder left in unit:\n%s", got)
	}
}

func TestGetTemplate_Override(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "templates"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "templates", "systemd-service.template"), []byte("custom {{USER}}"), 0644); err != nil {
		t.Fatal(err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	got, err := Render(SystemdService, TemplateData{"USER": "alice"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "custom alice" {
		t.Errorf("Expected override to be used, got %q", got)
	}
}

func TestGetTemplate_Unknown(t *testing.T) {
	if _, err := GetTemplate("nginx-site"); err == nil {
		t.Error("Expected error for unknown template")
	}
}
