package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePreset(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write preset: %v", err)
	}
	return path
}

func TestValidatePreset_ValidJSON(t *testing.T) {
	path := writePreset(t, "web.json", `{
		"name": "Web",
		"description": "Browser player",
		"state": {
			"edgemedia.channel": "web",
			"edgemedia.playerName": "html5",
			"edgemedia.appVersion": "1.0"
		}
	}`)

	result := validatePreset(path)
	if !result.Valid {
		t.Errorf("Expected valid preset, but got errors: %v", result.Errors)
	}
	if result.File != "web.json" {
		t.Errorf("Expected file web.json, got %s", result.File)
	}

	found := false
	for _, info := range result.Errors {
		if info == "✓ Channel: web" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected channel info line, got %v", result.Errors)
	}
}

func TestValidatePreset_ValidYAML(t *testing.T) {
	path := writePreset(t, "tv.yaml", `
state:
  edgemedia.channel: ctv
  custom.flag: true
`)

	result := validatePreset(path)
	if !result.Valid {
		t.Fatalf("Expected valid preset, but got errors: %v", result.Errors)
	}

	var sawName, sawForeign bool
	for _, info := range result.Errors {
		if strings.Contains(info, "No name") {
			sawName = true
		}
		if strings.Contains(info, `"custom.flag"`) {
			sawForeign = true
		}
	}
	if !sawName {
		t.Error("Expected a note about the missing name")
	}
	if !sawForeign {
		t.Error("Expected a note about the key outside the edgemedia namespace")
	}
}

func TestValidatePreset_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "malformed json",
			file:    "bad.json",
			content: `{"state": `,
			wantErr: "Parse error",
		},
		{
			name:    "empty state",
			file:    "empty.json",
			content: `{"name": "Empty", "state": {}}`,
			wantErr: "state is empty",
		},
		{
			name:    "missing channel",
			file:    "nochannel.yaml",
			content: "state:\n  edgemedia.playerName: html5\n",
			wantErr: "Missing edgemedia.channel",
		},
		{
			name:    "channel not a string",
			file:    "numeric.json",
			content: `{"state": {"edgemedia.channel": 7}}`,
			wantErr: "non-empty string",
		},
		{
			name:    "player name not a string",
			file:    "player.json",
			content: `{"state": {"edgemedia.channel": "web", "edgemedia.playerName": 3}}`,
			wantErr: "edgemedia.playerName must be a string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validatePreset(writePreset(t, tt.file, tt.content))
			if result.Valid {
				t.Fatal("Expected invalid preset")
			}
			found := false
			for _, e := range result.Errors {
				if strings.Contains(e, tt.wantErr) {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, result.Errors)
			}
		})
	}
}

func TestValidatePreset_MissingFile(t *testing.T) {
	result := validatePreset(filepath.Join(t.TempDir(), "missing.json"))
	if result.Valid {
		t.Error("Expected missing file to be invalid")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "Failed to read file") {
		t.Errorf("Unexpected errors: %v", result.Errors)
	}
}

func TestPresetFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.json", "c.yml", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := presetFiles(dir)
	if err != nil {
		t.Fatalf("presetFiles failed: %v", err)
	}

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	want := "a.json,b.yaml,c.yml"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestRepositoryPresets(t *testing.T) {
	files, err := presetFiles("../presets")
	if err != nil {
		t.Fatalf("presetFiles failed: %v", err)
	}
	if len(files) == 0 {
		t.Skip("no presets shipped")
	}
	for _, f := range files {
		if result := validatePreset(f); !result.Valid {
			t.Errorf("%s is invalid: %v", result.File, result.Errors)
		}
	}
}
