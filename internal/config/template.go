package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Template is written when no configuration file exists yet.
const Template = `{
    "start_scene": "Coding",
    "unknown_app_scene": "Privacy",
    "delay_time": 300,
    "window_class": {
        "google-chrome": {
            "strict_match": true,
            "scene": "Research"
        },
        "jetbrains": {
            "strict_match": false,
            "scene": "Coding"
        }
    },
    "window_name": {
        "whatsapp": {
            "strict_match": false,
            "scene": "Privacy"
        }
    },
    "desktop_name": {}
}
`

// Generate writes Template to path, creating parent directories. It refuses to
// overwrite an existing file.
func Generate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	if _, err := f.WriteString(Template); err != nil {
		f.Close()
		return fmt.Errorf("write config: %w", err)
	}
	return f.Close()
}
