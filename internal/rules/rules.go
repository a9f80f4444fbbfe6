package rules

import (
	"github.com/hyprpal/scenepal/internal/config"
)

// Category names one of the three classification axes.
type Category string

const (
	CategoryDesktop     Category = "desktop"
	CategoryWindowName  Category = "window_name"
	CategoryWindowClass Category = "window_class"
)

// Rule is a single configured identifier ready for matching.
type Rule struct {
	Identifier string
	Strict     bool
	// Scene is nil when the rule recognizes a window without asking for a
	// scene change.
	Scene *string
}

// RuleList splits a category into exact and substring rules, each in
// configuration order.
type RuleList struct {
	Strict   []Rule
	Relative []Rule
}

// Len returns the number of rules in the list.
func (l RuleList) Len() int {
	return len(l.Strict) + len(l.Relative)
}

// RuleSet is the matching view of a configuration snapshot.
type RuleSet struct {
	Desktop     RuleList
	WindowName  RuleList
	WindowClass RuleList
}

// Len returns the number of rules across all categories.
func (rs RuleSet) Len() int {
	return rs.Desktop.Len() + rs.WindowName.Len() + rs.WindowClass.Len()
}

// Derive builds a RuleSet from cfg. It is cheap enough to run on every poll.
func Derive(cfg *config.Config) RuleSet {
	if cfg == nil {
		return RuleSet{}
	}
	return RuleSet{
		Desktop:     deriveList(cfg.DesktopName),
		WindowName:  deriveList(cfg.WindowName),
		WindowClass: deriveList(cfg.WindowClass),
	}
}

func deriveList(section config.Section) RuleList {
	var list RuleList
	for _, entry := range section.Entries {
		if entry.StrictMatch == nil {
			continue
		}
		rule := Rule{
			Identifier: entry.Identifier,
			Strict:     *entry.StrictMatch,
			Scene:      entry.Scene,
		}
		if rule.Strict {
			list.Strict = append(list.Strict, rule)
		} else {
			list.Relative = append(list.Relative, rule)
		}
	}
	return list
}
