package domain

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentsFile is the top-level structure of an agent seed YAML file, used to
// provision agents in development and test environments without the CRUD
// plane.
//
// Example:
//
//	agents:
//	  - id: "jess"
//	    display_name: "Jess"
//	    channel_mode: voice
//	    voice_mode: realtime
//	    voice_id: "alloy"
//	    base_system_prompt: "You are Jess, a scheduling assistant."
type AgentsFile struct {
	Agents []Agent `yaml:"agents"`
}

// LoadAgentsFile reads and parses an agent seed YAML file from disk. Every
// agent in the file is validated; the first invalid agent fails the load.
func LoadAgentsFile(path string) (*AgentsFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("domain: open agents file %q: %w", path, err)
	}
	defer f.Close()

	af, err := LoadAgentsFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("domain: parse agents file %q: %w", path, err)
	}
	return af, nil
}

// LoadAgentsFromReader parses agent seed YAML from an [io.Reader]. The reader
// is consumed entirely; the caller is responsible for closing it.
func LoadAgentsFromReader(r io.Reader) (*AgentsFile, error) {
	var af AgentsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&af); err != nil {
		return nil, fmt.Errorf("domain: decode agents yaml: %w", err)
	}

	var errs []error
	for i, a := range af.Agents {
		if err := ValidateAgent(a); err != nil {
			errs = append(errs, fmt.Errorf("agent[%d] %q: %w", i, a.DisplayName, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &af, nil
}
