package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/signalsfoundry/casualty-flow-simulator/model"
)

var (
	// ErrInvalidScenario is wrapped by every ValidationError.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrConfigurationBounds is wrapped by ConfigurationBoundsError.
	ErrConfigurationBounds = errors.New("configuration exceeds bounds")
	// ErrCancelled reports that a run stopped because its context was done.
	ErrCancelled = errors.New("generation cancelled")
	// ErrInternal reports a broken invariant inside the simulator.
	ErrInternal = errors.New("internal generation error")
)

// Validation rule identifiers carried by ValidationError.Rule.
const (
	RuleRequired      = "required"
	RuleRange         = "range"
	RuleSum           = "sum"
	RuleDuplicate     = "duplicate"
	RuleCoverage      = "coverage"
	RuleEnum          = "enum"
	RuleUnknown       = "unknown"
	RuleTimingOrder   = "timing_order"
	RuleFormat        = "format"
	RuleNonNegative   = "non_negative"
	RuleCasualtyRates = "casualty_rate_sum"
)

// ValidationError identifies one failing field of a ScenarioConfig.
type ValidationError struct {
	Field   string
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidScenario, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidScenario }

// ValidationErrors is the result of collect-all validation.
type ValidationErrors []error

func (errs ValidationErrors) Error() string {
	switch len(errs) {
	case 0:
		return "no validation errors"
	case 1:
		return errs[0].Error()
	}
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(errs), strings.Join(parts, "; "))
}

func (errs ValidationErrors) Unwrap() []error { return errs }

// ConfigurationBoundsError reports a value above a configured hard ceiling.
type ConfigurationBoundsError struct {
	Field string
	Limit int
	Value int
}

func (e *ConfigurationBoundsError) Error() string {
	return fmt.Sprintf("%s: %s=%d exceeds limit %d", ErrConfigurationBounds, e.Field, e.Value, e.Limit)
}

func (e *ConfigurationBoundsError) Unwrap() error { return ErrConfigurationBounds }

// GenerationErrorKind classifies a GenerationError.
type GenerationErrorKind int

const (
	KindCancelled GenerationErrorKind = iota + 1
	KindInternal
)

func (k GenerationErrorKind) String() string {
	switch k {
	case KindCancelled:
		return "cancelled"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// GenerationError is returned by Engine.Generate once simulation started.
// PatientIndex is -1 when the error is not tied to a single patient.
type GenerationError struct {
	Kind         GenerationErrorKind
	PatientIndex int
	Stage        model.FacilityStage
	Err          error
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	b.WriteString(e.sentinel().Error())
	if e.PatientIndex >= 0 {
		fmt.Fprintf(&b, ": patient %d", e.PatientIndex)
	}
	if e.Stage != "" {
		fmt.Fprintf(&b, " at %s", e.Stage)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *GenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Err}
}

func (e *GenerationError) sentinel() error {
	if e.Kind == KindCancelled {
		return ErrCancelled
	}
	return ErrInternal
}

func internalError(index int, stage model.FacilityStage, format string, args ...any) *GenerationError {
	return &GenerationError{
		Kind:         KindInternal,
		PatientIndex: index,
		Stage:        stage,
		Err:          fmt.Errorf(format, args...),
	}
}
