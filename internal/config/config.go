package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Root keys understood by the daemon.
const (
	KeyStartScene      = "start_scene"
	KeyUnknownAppScene = "unknown_app_scene"
	KeyDelayTime       = "delay_time"
	KeyWindowClass     = "window_class"
	KeyWindowName      = "window_name"
	KeyDesktopName     = "desktop_name"

	keyStrictMatch = "strict_match"
	keyScene       = "scene"
)

// DefaultDelayMs is used when delay_time is missing or unusable.
const DefaultDelayMs = 300

var requiredRootKeys = []string{KeyStartScene, KeyDelayTime, KeyWindowClass, KeyWindowName, KeyDesktopName}

// ErrEmpty is returned when the configuration document has no content.
var ErrEmpty = errors.New("config file is empty")

// Config is a parsed configuration snapshot. Sections keep the order in which
// identifiers appear in the file.
type Config struct {
	StartScene      string
	UnknownAppScene *string
	DelayMs         int
	WindowClass     Section
	WindowName      Section
	DesktopName     Section

	// Warnings lists content problems found while parsing. They never prevent
	// the snapshot from being used.
	Warnings []Warning
}

// Section is an ordered identifier -> entry mapping for one classification axis.
type Section struct {
	Name    string
	Entries []Entry
}

// Entry is a single configured identifier.
type Entry struct {
	Identifier string
	// StrictMatch is nil when strict_match is missing or not a boolean. Such
	// entries take part in neither strict nor relative matching.
	StrictMatch *bool
	// Scene is nil for "recognized, keep the current scene".
	Scene *string
}

// Warning describes a non-fatal configuration problem.
type Warning struct {
	Path    string
	Message string
}

func (w Warning) Error() string {
	if w.Path == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.Path, w.Message)
}

// StructuralError reports a configuration whose shape makes matching undefined.
type StructuralError struct {
	Key     string
	Message string
}

func (e *StructuralError) Error() string {
	if e.Key == "" {
		return e.Message
	}
	return fmt.Sprintf("root key %q %s", e.Key, e.Message)
}

// IsStructural reports whether err carries a StructuralError.
func IsStructural(err error) bool {
	var structural *StructuralError
	return errors.As(err, &structural)
}

// Delay returns the poll interval.
func (c *Config) Delay() time.Duration {
	if c == nil || c.DelayMs <= 0 {
		return DefaultDelayMs * time.Millisecond
	}
	return time.Duration(c.DelayMs) * time.Millisecond
}

// Sections returns the three classification sections in resolution order.
func (c *Config) Sections() []Section {
	return []Section{c.DesktopName, c.WindowName, c.WindowClass}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return cfg, data, nil
}

// LintFile parses the file at path and returns its content warnings. Decode
// and structural problems are returned as the error.
func LintFile(path string) ([]Warning, error) {
	cfg, _, err := Load(path)
	if err != nil {
		return nil, err
	}
	return cfg.Warnings, nil
}

// Parse decodes a configuration document. The document must be valid JSON;
// object members are visited in the order they appear in the file.
func Parse(data []byte) (*Config, error) {
	root, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if !root.isObject() {
		return nil, &StructuralError{Message: "config root must be an object"}
	}

	cfg := &Config{
		DelayMs:     DefaultDelayMs,
		WindowClass: Section{Name: KeyWindowClass},
		WindowName:  Section{Name: KeyWindowName},
		DesktopName: Section{Name: KeyDesktopName},
	}
	seen := make(map[string]struct{}, len(root.members))
	for _, m := range root.members {
		key, val := m.key, m.value
		seen[key] = struct{}{}
		switch key {
		case KeyStartScene:
			if !val.isString() {
				cfg.warn(key, "wrong type, it needs to be a string")
				continue
			}
			cfg.StartScene = val.str
		case KeyUnknownAppScene:
			switch {
			case val.isNull():
				cfg.UnknownAppScene = nil
			case val.isString():
				scene := val.str
				cfg.UnknownAppScene = &scene
			default:
				cfg.UnknownAppScene = nil
				cfg.warn(key, "wrong type, it needs to be a string or null")
			}
		case KeyDelayTime:
			ms, ok := val.asInt()
			if !ok {
				cfg.DelayMs = DefaultDelayMs
				cfg.warn(key, fmt.Sprintf("wrong type, it needs to be a number (using %dms)", DefaultDelayMs))
				continue
			}
			if ms <= 0 {
				cfg.DelayMs = DefaultDelayMs
				cfg.warn(key, fmt.Sprintf("must be positive (using %dms)", DefaultDelayMs))
				continue
			}
			cfg.DelayMs = ms
		case KeyWindowClass, KeyWindowName, KeyDesktopName:
			if !val.isObject() {
				return nil, &StructuralError{Key: key, Message: "is not an object, this needs to be fixed"}
			}
			section, warnings := parseSection(key, val)
			cfg.Warnings = append(cfg.Warnings, warnings...)
			switch key {
			case KeyWindowClass:
				cfg.WindowClass = section
			case KeyWindowName:
				cfg.WindowName = section
			default:
				cfg.DesktopName = section
			}
		default:
			cfg.warn(key, "unknown root key, ignoring")
		}
	}
	for _, key := range requiredRootKeys {
		if _, ok := seen[key]; !ok {
			cfg.warn(key, "missing root key")
		}
	}
	return cfg, nil
}

func (c *Config) warn(path, message string) {
	c.Warnings = append(c.Warnings, Warning{Path: path, Message: message})
}

func parseSection(name string, n *node) (Section, []Warning) {
	section := Section{Name: name}
	var warnings []Warning
	index := make(map[string]int, len(n.members))
	for _, m := range n.members {
		id := m.key
		path := name + "." + id
		if !m.value.isObject() {
			warnings = append(warnings, Warning{Path: path, Message: "entry is not an object, ignoring"})
			continue
		}
		entry, entryWarnings := parseEntry(path, id, m.value)
		warnings = append(warnings, entryWarnings...)
		if pos, dup := index[id]; dup {
			section.Entries[pos] = entry
			warnings = append(warnings, Warning{Path: path, Message: "duplicate identifier, the last definition wins"})
			continue
		}
		index[id] = len(section.Entries)
		section.Entries = append(section.Entries, entry)
	}
	return section, warnings
}

func parseEntry(path, id string, n *node) (Entry, []Warning) {
	entry := Entry{Identifier: id}
	var warnings []Warning
	var hasStrict, hasScene bool
	for _, m := range n.members {
		key, val := m.key, m.value
		switch key {
		case keyStrictMatch:
			hasStrict = true
			strict, ok := val.asBool()
			if !ok {
				entry.StrictMatch = nil
				warnings = append(warnings, Warning{Path: path + "." + key, Message: "wrong type, it needs to be either true or false"})
				continue
			}
			entry.StrictMatch = &strict
		case keyScene:
			hasScene = true
			switch {
			case val.isNull():
				entry.Scene = nil
			case val.isString():
				scene := val.str
				entry.Scene = &scene
			default:
				entry.Scene = nil
				warnings = append(warnings, Warning{Path: path + "." + key, Message: "wrong type, it needs to be a string or null"})
			}
		default:
			warnings = append(warnings, Warning{Path: path + "." + key, Message: "unknown sub key, ignoring"})
		}
	}
	if !hasStrict {
		warnings = append(warnings, Warning{Path: path, Message: "missing sub key strict_match, the entry is never matched"})
	}
	if !hasScene {
		warnings = append(warnings, Warning{Path: path, Message: "missing sub key scene, treating it as null"})
	}
	if id == "" && entry.StrictMatch != nil && !*entry.StrictMatch {
		warnings = append(warnings, Warning{Path: path, Message: "empty relative identifier matches every window"})
	}
	return entry, warnings
}
