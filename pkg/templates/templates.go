package templates

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Template names
const (
	SystemdService = "systemd-service"
)

//go:embed defaults/*.template
var defaults embed.FS

// TemplateData holds variables for template rendering.
type TemplateData map[string]string

// GetTemplatePaths returns the override search paths for a template.
func GetTemplatePaths(templateName string) []string {
	filename := templateName + ".template"
	return []string{
		filepath.Join(".", "templates", filename),
		filepath.Join(".", "config", "templates", filename),
		filepath.Join("/etc", "homesite", "templates", filename),
	}
}

// GetTemplate returns the raw template content by name.
// Overrides are looked up in the following order before falling back to the
// built-in copy:
// 1. ./templates/<name>.template
// 2. ./config/templates/<name>.template
// 3. /etc/homesite/templates/<name>.template
func GetTemplate(name string) (string, error) {
	if !ValidateTemplate(name) {
		return "", fmt.Errorf("unknown template: %s", name)
	}

	for _, path := range GetTemplatePaths(name) {
		if content, err := os.ReadFile(path); err == nil {
			return string(content), nil
		}
	}

	content, err := defaults.ReadFile("defaults/" + name + ".template")
	if err != nil {
		return "", fmt.Errorf("template file not found: %s", name)
	}
	return string(content), nil
}

// Render renders a template with the given data.
// Uses {{PLACEHOLDER}} syntax for variable substitution.
//
// Example:
//
//	data := TemplateData{
//	    "USER": "www",
//	    "BINARY": "/srv/homesite/current/homesite",
//	}
//	rendered, err := Render(SystemdService, data)
func Render(templateName string, data TemplateData) (string, error) {
	tmplContent, err := GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	rendered := tmplContent
	for key, value := range data {
		placeholder := fmt.Sprintf("{{%s}}", key)
		rendered = strings.ReplaceAll(rendered, placeholder, value)
	}

	return rendered, nil
}

// ServiceUnit describes the systemd unit that supervises the server.
type ServiceUnit struct {
	User       string
	Group      string
	WorkingDir string
	Binary     string
	EnvFile    string
}

// RenderSystemdService renders the systemd service template.
func RenderSystemdService(u ServiceUnit) (string, error) {
	return Render(SystemdService, TemplateData{
		"USER":        u.User,
		"GROUP":       u.Group,
		"WORKING_DIR": u.WorkingDir,
		"BINARY":      u.Binary,
		"ENV_FILE":    u.EnvFile,
	})
}

// ValidateTemplate checks if a template name is valid.
func ValidateTemplate(name string) bool {
	return name == SystemdService
}
