// core/scenario_loader.go
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/casualty-flow-simulator/kb"
	"github.com/signalsfoundry/casualty-flow-simulator/model"
)

// LoadScenario decodes a JSON scenario configuration from r. Unknown fields
// are ignored so that payloads carrying UI metadata still load. The result
// is not validated.
func LoadScenario(r io.Reader) (*model.ScenarioConfig, error) {
	if r == nil {
		return nil, fmt.Errorf("LoadScenario: reader is nil")
	}
	var cfg model.ScenarioConfig
	dec := json.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}
	return &cfg, nil
}

// LoadScenarioFile reads a scenario from a .json, .yaml or .yml file.
// YAML documents are converted to JSON first so that one decoder defines
// the wire shape.
func LoadScenarioFile(path string) (*model.ScenarioConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadScenarioFile: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("LoadScenarioFile: %s: %w", path, err)
		}
	case ".json", "":
	default:
		return nil, fmt.Errorf("LoadScenarioFile: unsupported extension %q", filepath.Ext(path))
	}
	cfg, err := LoadScenario(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("LoadScenarioFile: %s: %w", path, err)
	}
	return cfg, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml decode failed: %w", err)
	}
	normalised, err := jsonCompatible(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalised)
}

// jsonCompatible rewrites map[any]any nodes, which encoding/json rejects,
// into map[string]any.
func jsonCompatible(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			c, err := jsonCompatible(child)
			if err != nil {
				return nil, err
			}
			t[k] = c
		}
		return t, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprint(k)
			}
			c, err := jsonCompatible(child)
			if err != nil {
				return nil, err
			}
			out[key] = c
		}
		return out, nil
	case []any:
		for i, child := range t {
			c, err := jsonCompatible(child)
			if err != nil {
				return nil, err
			}
			t[i] = c
		}
		return t, nil
	default:
		return v, nil
	}
}

// ApplyDefaults returns a copy of cfg whose missing timing cells, rate
// modifiers, intensity and tempo are filled from the knowledge base. The
// caller's configuration is left untouched. Values that are present are
// never replaced, so the copy still has to pass validation.
func ApplyDefaults(cfg *model.ScenarioConfig, store *kb.KnowledgeBase) *model.ScenarioConfig {
	if cfg == nil {
		return nil
	}
	if store == nil {
		store = defaultKB()
	}
	out := *cfg

	if out.Intensity == "" {
		out.Intensity = model.IntensityMedium
	}
	if out.Tempo == "" {
		out.Tempo = model.TempoSustained
	}

	dwell := store.DefaultDwellTable()
	out.EvacuationTimes = make(model.DwellTable, len(model.Stages))
	for stage, row := range cfg.EvacuationTimes {
		out.EvacuationTimes[stage] = copyCells(row)
	}
	for _, stage := range model.Stages {
		if out.EvacuationTimes[stage] == nil {
			out.EvacuationTimes[stage] = make(map[model.TriageCategory]model.TimingCell, len(model.TriageCategories))
		}
		for _, triage := range model.TriageCategories {
			if _, ok := out.EvacuationTimes[stage][triage]; !ok {
				if c, ok := dwell[stage][triage]; ok {
					out.EvacuationTimes[stage][triage] = c
				}
			}
		}
	}

	transit := store.DefaultTransitTable()
	out.TransitTimes = make(model.TransitTable, len(model.Routes))
	for route, row := range cfg.TransitTimes {
		out.TransitTimes[route] = copyCells(row)
	}
	for _, route := range model.Routes {
		if out.TransitTimes[route] == nil {
			out.TransitTimes[route] = make(map[model.TriageCategory]model.TimingCell, len(model.TriageCategories))
		}
		for _, triage := range model.TriageCategories {
			if _, ok := out.TransitTimes[route][triage]; !ok {
				if c, ok := transit[route][triage]; ok {
					out.TransitTimes[route][triage] = c
				}
			}
		}
	}

	out.KIARateModifiers = withUnitModifiers(cfg.KIARateModifiers)
	out.RTDRateModifiers = withUnitModifiers(cfg.RTDRateModifiers)
	return &out
}

func copyCells(row map[model.TriageCategory]model.TimingCell) map[model.TriageCategory]model.TimingCell {
	out := make(map[model.TriageCategory]model.TimingCell, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func withUnitModifiers(in model.RateModifiers) model.RateModifiers {
	out := make(model.RateModifiers, len(model.TriageCategories))
	for k, v := range in {
		out[k] = v
	}
	for _, triage := range model.TriageCategories {
		if _, ok := out[triage]; !ok {
			out[triage] = 1
		}
	}
	return out
}
