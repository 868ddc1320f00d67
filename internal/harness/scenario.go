package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE class spec files, relative to the scenario file.
	Specs []string `yaml:"specs"`

	// CompressedOops selects narrow reference slots. Defaults to true.
	CompressedOops *bool `yaml:"compressed_oops,omitempty"`

	// HeapCapacity limits the heap in bytes. Zero means the heap default.
	HeapCapacity int64 `yaml:"heap_capacity,omitempty"`

	// MaxArrayLength overrides the runtime array length limit.
	MaxArrayLength int `yaml:"max_array_length,omitempty"`

	// Steps run in order against one universe.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after every step has run.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of Resolve, Allocate, Set or Copy.
type Step struct {
	Resolve  *ResolveStep  `yaml:"resolve,omitempty"`
	Allocate *AllocateStep `yaml:"allocate,omitempty"`
	Set      *SetStep      `yaml:"set,omitempty"`
	Copy     *CopyStep     `yaml:"copy,omitempty"`

	// ExpectError is the error kind the step must fail with
	// (e.g. "ArrayStoreException"). Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// ResolveStep creates or looks up the array of a class.
type ResolveStep struct {
	Class    string `yaml:"class"`
	Rank     int    `yaml:"rank,omitempty"` // defaults to 1
	NullFree bool   `yaml:"null_free,omitempty"`
}

// AllocateStep allocates an object and binds it to a name. Class is an
// instance class name or an array name such as "[Lapp/Base;" or "[I".
// Lengths allocates a multi-dimensional array.
type AllocateStep struct {
	Class   string `yaml:"class"`
	Length  int    `yaml:"length,omitempty"`
	Lengths []int  `yaml:"lengths,omitempty"`
	As      string `yaml:"as"`
}

// SetStep stores a named object, or null, into an array element with the
// checks of an element store.
type SetStep struct {
	Array string `yaml:"array"`
	Index int    `yaml:"index"`
	Value string `yaml:"value"` // object name or "null"
}

// CopyStep copies between two named arrays.
type CopyStep struct {
	Src    string `yaml:"src"`
	SrcPos int    `yaml:"src_pos,omitempty"`
	Dst    string `yaml:"dst"`
	DstPos int    `yaml:"dst_pos,omitempty"`
	Length int    `yaml:"length"`
}

// Assertion validates the final runtime state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "lattice": supertypes of a class
	// - "contents": elements of a named array
	// - "published": classes published during the run, in order
	Type string `yaml:"type"`

	// Class is the class under test (lattice).
	Class string `yaml:"class,omitempty"`

	// Super is the expected direct super class (lattice).
	Super string `yaml:"super,omitempty"`

	// Secondaries are the expected secondary supers, in order (lattice).
	Secondaries []string `yaml:"secondaries,omitempty"`

	// SubtypeOf and NotSubtypeOf list classes the class must and must not
	// be assignable to (lattice).
	SubtypeOf    []string `yaml:"subtype_of,omitempty"`
	NotSubtypeOf []string `yaml:"not_subtype_of,omitempty"`

	// Array names the array under test (contents).
	Array string `yaml:"array,omitempty"`

	// Values are object names or "null", one per element (contents).
	Values []string `yaml:"values,omitempty"`

	// Classes is the expected publication order (published).
	Classes []string `yaml:"classes,omitempty"`
}

// Assertion type constants.
const (
	AssertLattice   = "lattice"
	AssertContents  = "contents"
	AssertPublished = "published"
)

// NullValue names the null reference in set steps and contents assertions.
const NullValue = "null"

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: empty scenario file")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) {
			scenario.Specs[i] = filepath.Join(base, specPath)
		}
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
	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, st *Step) error {
	n := 0
	for _, set := range []bool{st.Resolve != nil, st.Allocate != nil, st.Set != nil, st.Copy != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("steps[%d]: exactly one of resolve, allocate, set, copy is required", index)
	}

	switch {
	case st.Resolve != nil:
		if st.Resolve.Class == "" {
			return fmt.Errorf("steps[%d].resolve: class is required", index)
		}
		if st.Resolve.Rank < 0 {
			return fmt.Errorf("steps[%d].resolve: rank must be positive", index)
		}
	case st.Allocate != nil:
		if st.Allocate.Class == "" {
			return fmt.Errorf("steps[%d].allocate: class is required", index)
		}
		if st.Allocate.As == "" {
			return fmt.Errorf("steps[%d].allocate: as is required", index)
		}
		if st.Allocate.As == NullValue {
			return fmt.Errorf("steps[%d].allocate: %q is reserved", index, NullValue)
		}
	case st.Set != nil:
		if st.Set.Array == "" || st.Set.Value == "" {
			return fmt.Errorf("steps[%d].set: array and value are required", index)
		}
	case st.Copy != nil:
		if st.Copy.Src == "" || st.Copy.Dst == "" {
			return fmt.Errorf("steps[%d].copy: src and dst are required", index)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertLattice:
		if a.Class == "" {
			return fmt.Errorf("assertions[%d]: lattice requires class", index)
		}
	case AssertContents:
		if a.Array == "" {
			return fmt.Errorf("assertions[%d]: contents requires array", index)
		}
	case AssertPublished:
		if a.Classes == nil {
			return fmt.Errorf("assertions[%d]: published requires classes", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}
