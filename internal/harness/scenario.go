package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/loomworks/millflow/internal/config"
)

// Scenario defines a conformance test scenario: seed data, a flow of
// transitions and dispatch passes, and assertions on the resulting state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed declares the transition graph and handler registry,
	// in the same shape as a seed file.
	Seed config.SeedConfig `yaml:"seed"`

	// Entities are the domain records to create before the flow runs.
	Entities []EntityRow `yaml:"entities"`

	// Inventory sets stock levels before the flow runs.
	Inventory []InventoryRow `yaml:"inventory,omitempty"`

	// Flow is the sequence of transitions and dispatch passes.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state.
	// Supported types: entity_status, event_status_count, journal_exists,
	// alert_count
	Assertions []Assertion `yaml:"assertions"`
}

// EntityRow seeds one entity.
type EntityRow struct {
	EntityType string         `yaml:"entity_type"`
	ID         string         `yaml:"id"`
	OrgID      string         `yaml:"org_id"`
	Status     string         `yaml:"status"`
	Attrs      map[string]any `yaml:"attrs,omitempty"`
}

// InventoryRow seeds one stock level.
type InventoryRow struct {
	OrgID        string  `yaml:"org_id"`
	MaterialCode string  `yaml:"material_code"`
	OnHand       float64 `yaml:"on_hand"`
}

// Step is one flow action. Exactly one field must be set.
type Step struct {
	Transition *TransitionStep `yaml:"transition,omitempty"`
	Process    *ProcessStep    `yaml:"process,omitempty"`
	Retry      *RetryStep      `yaml:"retry,omitempty"`
}

// TransitionStep applies one state transition.
type TransitionStep struct {
	EntityType string `yaml:"entity_type"`
	EntityID   string `yaml:"entity_id"`
	OrgID      string `yaml:"org_id"`
	To         string `yaml:"to"`

	// ExpectError names the expected failure code
	// (e.g. "ILLEGAL_TRANSITION"). Empty means the transition must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// ProcessStep runs one dispatch pass.
type ProcessStep struct {
	OrgID string `yaml:"org_id,omitempty"`
	Limit int    `yaml:"limit,omitempty"`
}

// RetryStep resets a failed event by its deterministic harness ID
// (evt-1, evt-2, ... in transition order).
type RetryStep struct {
	EventID string `yaml:"event_id"`
}

// Assertion validates final state.
type Assertion struct {
	Type string `yaml:"type"`

	// entity_status fields.
	EntityType string `yaml:"entity_type,omitempty"`
	EntityID   string `yaml:"entity_id,omitempty"`
	OrgID      string `yaml:"org_id,omitempty"`
	Status     string `yaml:"status,omitempty"`

	// event_status_count: Status above plus Count.
	Count int `yaml:"count,omitempty"`

	// journal_exists fields.
	SourceType string `yaml:"source_type,omitempty"`
	SourceID   string `yaml:"source_id,omitempty"`

	// alert_count fields (Count above).
	OrderID string `yaml:"order_id,omitempty"`
}

// Assertion type constants.
const (
	AssertEntityStatus     = "entity_status"
	AssertEventStatusCount = "event_status_count"
	AssertJournalExists    = "journal_exists"
	AssertAlertCount       = "alert_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, e := range s.Entities {
		if e.EntityType == "" || e.ID == "" || e.OrgID == "" || e.Status == "" {
			return fmt.Errorf("entities[%d]: entity_type, id, org_id, and status are required", i)
		}
	}

	for i, step := range s.Flow {
		set := 0
		if step.Transition != nil {
			set++
			tr := step.Transition
			if tr.EntityType == "" || tr.EntityID == "" || tr.OrgID == "" || tr.To == "" {
				return fmt.Errorf("flow[%d].transition: entity_type, entity_id, org_id, and to are required", i)
			}
		}
		if step.Process != nil {
			set++
		}
		if step.Retry != nil {
			set++
			if step.Retry.EventID == "" {
				return fmt.Errorf("flow[%d].retry: event_id is required", i)
			}
		}
		if set != 1 {
			return fmt.Errorf("flow[%d]: exactly one of transition, process, retry must be set", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertEntityStatus:
		if a.EntityType == "" || a.EntityID == "" || a.OrgID == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: entity_type, entity_id, org_id, and status are required for entity_status", index)
		}
	case AssertEventStatusCount:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for event_status_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertJournalExists:
		if a.OrgID == "" || a.SourceType == "" || a.SourceID == "" {
			return fmt.Errorf("assertions[%d]: org_id, source_type, and source_id are required for journal_exists", index)
		}
	case AssertAlertCount:
		if a.OrgID == "" || a.OrderID == "" {
			return fmt.Errorf("assertions[%d]: org_id and order_id are required for alert_count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
