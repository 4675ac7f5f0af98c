// Package config loads server settings and shared-state presets.
//
// Settings come from a YAML file and fall back to DefaultSettings for any
// field the file leaves out:
//
//	host: 0.0.0.0
//	port: 8080
//	presets_dir: presets
//	default_preset: web
//
// Presets are JSON or YAML documents in the presets directory. Each carries
// a name, a description and the shared-state map applied to the processor:
//
//	name: Web player
//	state:
//	  edgemedia.channel: web
//	  edgemedia.playerName: html5
//
// Usage:
//
//	manager, err := config.NewManager("presets", "web")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	preset, err := manager.LoadPreset("web")
//	presets, err := manager.ListPresets()
package config
