package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/loomworks/millflow/internal/event"
)

// SeedConfig declares the transition graph and handler registry rows for a
// deployment. Loaded once at setup time and upserted into the database; the
// engine and dispatcher read only the database afterwards.
type SeedConfig struct {
	// Chains declare linear status sequences per entity type. A chain
	// [a, b, c] expands to the edges a->b and b->c.
	Chains []Chain `yaml:"chains"`

	// Transitions declare individual edges that are not part of a linear
	// chain (branches, shortcuts like confirmed -> cancelled).
	Transitions []TransitionRow `yaml:"transitions,omitempty"`

	// Handlers bind event types to named action functions.
	Handlers []HandlerRow `yaml:"handlers"`
}

// Chain is a linear status sequence for one entity type.
type Chain struct {
	EntityType string   `yaml:"entity_type"`
	Statuses   []string `yaml:"statuses"`
}

// TransitionRow is a single explicit edge.
type TransitionRow struct {
	EntityType string `yaml:"entity_type"`
	From       string `yaml:"from"`
	To         string `yaml:"to"`
}

// HandlerRow is one handler registry entry.
type HandlerRow struct {
	EventType       string `yaml:"event_type"`
	HandlerFunction string `yaml:"handler_function"`
	Priority        int    `yaml:"priority"`
	Disabled        bool   `yaml:"disabled,omitempty"`
}

// LoadSeed reads and parses a seed YAML file with strict field validation.
func LoadSeed(path string) (*SeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	if err := seed.validate(); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}

	return &seed, nil
}

func (s *SeedConfig) validate() error {
	if len(s.Chains) == 0 && len(s.Transitions) == 0 {
		return fmt.Errorf("at least one chain or transition is required")
	}

	for i, c := range s.Chains {
		if c.EntityType == "" {
			return fmt.Errorf("chains[%d]: entity_type is required", i)
		}
		if len(c.Statuses) < 2 {
			return fmt.Errorf("chains[%d]: at least two statuses are required", i)
		}
	}

	for i, tr := range s.Transitions {
		if tr.EntityType == "" || tr.From == "" || tr.To == "" {
			return fmt.Errorf("transitions[%d]: entity_type, from, and to are required", i)
		}
	}

	for i, h := range s.Handlers {
		if h.EventType == "" {
			return fmt.Errorf("handlers[%d]: event_type is required", i)
		}
		if h.HandlerFunction == "" {
			return fmt.Errorf("handlers[%d]: handler_function is required", i)
		}
	}

	return nil
}

// TransitionRows expands chains and explicit edges into the flat transition
// rows to upsert. Chain edges come first, in declaration order.
func (s *SeedConfig) TransitionRows() []event.Transition {
	var rows []event.Transition
	for _, c := range s.Chains {
		for i := 0; i < len(c.Statuses)-1; i++ {
			rows = append(rows, event.Transition{
				EntityType: c.EntityType,
				FromStatus: c.Statuses[i],
				ToStatus:   c.Statuses[i+1],
			})
		}
	}
	for _, tr := range s.Transitions {
		rows = append(rows, event.Transition{
			EntityType: tr.EntityType,
			FromStatus: tr.From,
			ToStatus:   tr.To,
		})
	}
	return rows
}

// HandlerRows converts the handler declarations to registry rows.
func (s *SeedConfig) HandlerRows() []event.Handler {
	var rows []event.Handler
	for _, h := range s.Handlers {
		rows = append(rows, event.Handler{
			EventType:       h.EventType,
			HandlerFunction: h.HandlerFunction,
			Priority:        h.Priority,
			Enabled:         !h.Disabled,
		})
	}
	return rows
}
