package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/palcid/livepal/gate"
)

// RulesDoc is the YAML bootstrap document shipped alongside overlay presets.
// It seeds plugins, rate-limit channels and mappings before any database
// state exists; rules managed through the API afterwards take precedence by
// rule ID.
type RulesDoc struct {
	Channels []ChannelDoc `yaml:"channels"`
	Plugins  []PluginDoc  `yaml:"plugins"`
}

// Duration decodes YAML scalars in Go duration syntax ("6s", "1m30s").
// yaml.v3 has no native handling for time.Duration strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

type ChannelDoc struct {
	Name         string   `yaml:"name"`
	MaxPerWindow int      `yaml:"max_per_window"`
	Window       Duration `yaml:"window"`
}

type PluginDoc struct {
	Name  string    `yaml:"name"`
	Rules []RuleDoc `yaml:"rules"`
}

type RuleDoc struct {
	ID         string                  `yaml:"id"`
	EventType  string                  `yaml:"event_type"`
	Enabled    *bool                   `yaml:"enabled"`
	Conditions map[string]ConditionDoc `yaml:"conditions"`
	Cooldown   CooldownDoc             `yaml:"cooldown"`
	Channel    string                  `yaml:"channel"`
	Action     map[string]any          `yaml:"action"`
}

type ConditionDoc struct {
	Equals *string  `yaml:"equals"`
	Min    *float64 `yaml:"min"`
	Max    *float64 `yaml:"max"`
}

type CooldownDoc struct {
	Global    Duration `yaml:"global"`
	PerDevice Duration `yaml:"per_device"`
	PerUser   Duration `yaml:"per_user"`
}

// LoadRulesFile parses a bootstrap document from disk.
func LoadRulesFile(path string) (*RulesDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRulesDoc(raw)
}

// ParseRulesDoc parses and sanity-checks a bootstrap document.
func ParseRulesDoc(raw []byte) (*RulesDoc, error) {
	var doc RulesDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	for _, ch := range doc.Channels {
		if ch.Name == "" {
			return nil, fmt.Errorf("rules file: channel without name")
		}
	}
	for _, p := range doc.Plugins {
		if p.Name == "" {
			return nil, fmt.Errorf("rules file: plugin without name")
		}
	}
	return &doc, nil
}

// Rule converts a document entry into a gate rule. Enabled defaults to true
// when omitted; validation happens in gate.AddMapping.
func (d RuleDoc) Rule() gate.Rule {
	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}
	r := gate.Rule{
		ID:        d.ID,
		EventType: d.EventType,
		Enabled:   enabled,
		Channel:   d.Channel,
		Cooldown: gate.Cooldown{
			Global:    time.Duration(d.Cooldown.Global),
			PerDevice: time.Duration(d.Cooldown.PerDevice),
			PerUser:   time.Duration(d.Cooldown.PerUser),
		},
	}
	if d.Action != nil {
		r.Action = d.Action
	}
	if len(d.Conditions) > 0 {
		r.Conditions = make(map[string]gate.Condition, len(d.Conditions))
		for field, c := range d.Conditions {
			r.Conditions[field] = gate.Condition{Equals: c.Equals, Min: c.Min, Max: c.Max}
		}
	}
	return r
}
