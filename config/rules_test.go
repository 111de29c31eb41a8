package config

import (
	"testing"
	"time"
)

const sampleRulesDoc = `
channels:
  - name: fireworks
    max_per_window: 5
    window: 1s
plugins:
  - name: fireworks
    rules:
      - id: rose-rocket
        event_type: gift
        conditions:
          giftId:
            equals: "5655"
          repeatCount:
            min: 1
            max: 100
        cooldown:
          global: 6s
          per_user: 15s
        channel: fireworks
        action:
          effect: rocket
      - event_type: follow
        enabled: false
        cooldown:
          per_user: 60s
`

func TestParseRulesDoc(t *testing.T) {
	doc, err := ParseRulesDoc([]byte(sampleRulesDoc))
	if err != nil {
		t.Fatalf("ParseRulesDoc: %v", err)
	}
	if len(doc.Channels) != 1 || doc.Channels[0].MaxPerWindow != 5 || time.Duration(doc.Channels[0].Window) != time.Second {
		t.Errorf("channels = %+v", doc.Channels)
	}
	if len(doc.Plugins) != 1 || len(doc.Plugins[0].Rules) != 2 {
		t.Fatalf("plugins = %+v", doc.Plugins)
	}

	r := doc.Plugins[0].Rules[0].Rule()
	if r.ID != "rose-rocket" || r.EventType != "gift" || !r.Enabled {
		t.Errorf("rule = %+v", r)
	}
	if r.Cooldown.Global != 6*time.Second || r.Cooldown.PerUser != 15*time.Second {
		t.Errorf("cooldown = %+v", r.Cooldown)
	}
	cond, ok := r.Conditions["giftId"]
	if !ok || cond.Equals == nil || *cond.Equals != "5655" {
		t.Errorf("giftId condition = %+v", cond)
	}
	rng := r.Conditions["repeatCount"]
	if rng.Min == nil || rng.Max == nil || *rng.Min != 1 || *rng.Max != 100 {
		t.Errorf("repeatCount condition = %+v", rng)
	}
	if err := r.Validate(); err != nil {
		t.Errorf("bootstrap rule invalid: %v", err)
	}

	disabled := doc.Plugins[0].Rules[1].Rule()
	if disabled.Enabled {
		t.Errorf("explicit enabled:false ignored")
	}
}

func TestParseRulesDocRejectsAnonymousPlugin(t *testing.T) {
	if _, err := ParseRulesDoc([]byte("plugins:\n  - rules: []\n")); err == nil {
		t.Errorf("plugin without name accepted")
	}
}
