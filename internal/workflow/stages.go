// Package workflow owns the shipment stage progression rules: the fixed
// stage order, completion flags, status derivation and the legacy-record
// normalization applied when shipments are loaded.
package workflow

import "encoding/json"

// Stage is one named phase of the shipment workflow.
type Stage string

const (
	StageBerthConfirmation    Stage = "berth-confirmation"
	StagePreSubmission        Stage = "pre-submission"
	StagePortnetSubmission    Stage = "portnet-submission"
	StagePreArrivalValidation Stage = "pre-arrival-validation"
	StageDischargeSummary     Stage = "discharge-summary"
	StageVesselArrival        Stage = "vessel-arrival"
	StageCompleted            Stage = "completed"
)

// Order lists workable stages oldest first. StageCompleted is a derived
// terminal status, not a workable stage, so it is not in the slice.
var Order = []Stage{
	StageBerthConfirmation,
	StagePreSubmission,
	StagePortnetSubmission,
	StagePreArrivalValidation,
	StageDischargeSummary,
	StageVesselArrival,
}

// StageFlags records which stages a shipment has completed.
type StageFlags struct {
	BerthConfirmation    bool `json:"berthConfirmation"`
	PreSubmission        bool `json:"preSubmission"`
	PortnetSubmission    bool `json:"portnetSubmission"`
	PreArrivalValidation bool `json:"preArrivalValidation"`
	DischargeSummary     bool `json:"dischargeSummary"`
	VesselArrival        bool `json:"vesselArrival"`
}

// UnmarshalJSON backfills berthConfirmation for records written before the
// stage existed: an absent key means the shipment predates the stage and is
// treated as already past it. Idempotent; an explicit false is preserved.
func (f *StageFlags) UnmarshalJSON(data []byte) error {
	type alias StageFlags
	var parsed alias
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	if _, ok := keys["berthConfirmation"]; !ok {
		parsed.BerthConfirmation = true
	}
	*f = StageFlags(parsed)
	return nil
}

// Completed reports whether the given stage's flag is set.
func (f StageFlags) Completed(stage Stage) bool {
	switch stage {
	case StageBerthConfirmation:
		return f.BerthConfirmation
	case StagePreSubmission:
		return f.PreSubmission
	case StagePortnetSubmission:
		return f.PortnetSubmission
	case StagePreArrivalValidation:
		return f.PreArrivalValidation
	case StageDischargeSummary:
		return f.DischargeSummary
	case StageVesselArrival:
		return f.VesselArrival
	default:
		return false
	}
}

// WithCompleted returns a copy with the given stage marked complete.
// Flags are never cleared; the completed set only grows.
func (f StageFlags) WithCompleted(stage Stage) StageFlags {
	switch stage {
	case StageBerthConfirmation:
		f.BerthConfirmation = true
	case StagePreSubmission:
		f.PreSubmission = true
	case StagePortnetSubmission:
		f.PortnetSubmission = true
	case StagePreArrivalValidation:
		f.PreArrivalValidation = true
	case StageDischargeSummary:
		f.DischargeSummary = true
	case StageVesselArrival:
		f.VesselArrival = true
	}
	return f
}

// Index returns the position of a workable stage in Order, or -1.
func Index(stage Stage) int {
	for i, s := range Order {
		if s == stage {
			return i
		}
	}
	return -1
}

// StatusFor derives the canonical status from completion flags: the first
// not-yet-completed stage, or StageCompleted when every flag is set.
func StatusFor(f StageFlags) Stage {
	for _, stage := range Order {
		if !f.Completed(stage) {
			return stage
		}
	}
	return StageCompleted
}

// CanAdvance reports whether a shipment may move into target: every stage
// strictly before target must already be complete. Data-reconciliation
// gates are checked by the caller on top of this ordering rule.
func CanAdvance(f StageFlags, target Stage) bool {
	idx := Index(target)
	if idx < 0 {
		return target == StageCompleted && StatusFor(f) == StageCompleted
	}
	for _, stage := range Order[:idx] {
		if !f.Completed(stage) {
			return false
		}
	}
	return true
}

// Advance marks every stage before target as complete and returns the
// updated flags. It assumes CanAdvance already passed; the only flag it
// can flip is the stage immediately before target, since earlier ones are
// complete by precondition.
func Advance(f StageFlags, target Stage) StageFlags {
	idx := Index(target)
	if idx < 0 {
		return f
	}
	for _, stage := range Order[:idx] {
		f = f.WithCompleted(stage)
	}
	return f
}
