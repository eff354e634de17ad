package rulestore

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"telegram-forwarder/internal/model"
)

type seedFile struct {
	Forwards []model.Rule `yaml:"forwards"`
}

// LoadSeed reads the initial rule set used by Bootstrap from a YAML file:
//
//	forwards:
//	  - name: news
//	    destination: -100111
//	    sources: [-100222, -100333]
func LoadSeed(path string) (*model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	snap := model.NewSnapshot()
	for i, r := range seed.Forwards {
		if r.Name == "" {
			return nil, fmt.Errorf("seed rule %d has no name", i+1)
		}
		if snap.Index(r.Name) >= 0 {
			return nil, fmt.Errorf("seed rule %q is defined twice", r.Name)
		}
		rule := model.NewRule(r.Name, r.Destination)
		for _, src := range r.Sources {
			rule.AddSource(src)
		}
		snap.Rules = append(snap.Rules, rule)
	}
	return snap, nil
}
