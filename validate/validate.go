// Command validate checks the shared-state presets in a presets directory
// (default ../presets, or the first argument). For every .json, .yaml and
// .yml file it checks:
//   - the document parses and has a non-empty state
//   - edgemedia.channel is a non-empty string, so sessions can send events
//   - edgemedia.playerName and edgemedia.appVersion are strings when present
//   - keys outside the edgemedia namespace are reported but allowed
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/mediatracker/media/config"
	"github.com/wricardo/mediatracker/media/state"
)

const stateNamespace = "edgemedia."

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

// validatePreset loads and validates a single preset file.
func validatePreset(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	preset, err := config.ParsePreset(data, filepath.Ext(filePath))
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Parse error: %v", err))
		return result
	}

	if err := config.ValidatePreset(preset); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}

	if _, ok := preset.State[state.KeyChannel]; !ok && len(preset.State) > 0 {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Missing %s, sessions would hold every event", state.KeyChannel))
	}

	if preset.Name == "" {
		result.Errors = append(result.Errors, "✓ No name, the file name will be used")
	}

	for _, key := range []string{state.KeyPlayerName, state.KeyAppVersion} {
		v, ok := preset.State[key]
		if !ok {
			continue
		}
		if _, isString := v.(string); !isString {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s must be a string, got %T", key, v))
		}
	}

	var foreign []string
	for key := range preset.State {
		if !strings.HasPrefix(key, stateNamespace) {
			foreign = append(foreign, key)
		}
	}
	sort.Strings(foreign)
	for _, key := range foreign {
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Key %q is outside the %s namespace and is kept as is", key, strings.TrimSuffix(stateNamespace, ".")))
	}

	if result.Valid {
		if ch, _ := preset.State[state.KeyChannel].(string); ch != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("✓ Channel: %s", ch))
		}
		result.Errors = append(result.Errors, fmt.Sprintf("✓ %d state keys", len(preset.State)))
	}

	return result
}

// presetFiles lists the preset documents in dir, sorted by name.
func presetFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

func main() {
	presetDir := "../presets"
	if len(os.Args) > 1 {
		presetDir = os.Args[1]
	}

	files, err := presetFiles(presetDir)
	if err != nil {
		fmt.Printf("Error finding preset files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No preset files found in %s\n", presetDir)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validatePreset(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All presets are valid!")
	} else {
		fmt.Println("❌ Some presets have errors")
		os.Exit(1)
	}
}
