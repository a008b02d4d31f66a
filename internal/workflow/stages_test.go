package workflow

import (
	"encoding/json"
	"testing"
)

func allComplete() StageFlags {
	flags := StageFlags{}
	for _, stage := range Order {
		flags = flags.WithCompleted(stage)
	}
	return flags
}

func TestStageFlagsBackfillsAbsentBerthConfirmation(t *testing.T) {
	var flags StageFlags
	if err := json.Unmarshal([]byte(`{"preSubmission":true}`), &flags); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !flags.BerthConfirmation {
		t.Fatalf("record without a berthConfirmation key should read as past that stage")
	}
	if !flags.PreSubmission || flags.PortnetSubmission {
		t.Fatalf("other flags changed: %+v", flags)
	}
}

func TestStageFlagsKeepsExplicitFalse(t *testing.T) {
	var flags StageFlags
	if err := json.Unmarshal([]byte(`{"berthConfirmation":false,"preSubmission":true}`), &flags); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if flags.BerthConfirmation {
		t.Fatalf("explicit berthConfirmation=false was overwritten")
	}
}

func TestStageFlagsRoundTripIsStable(t *testing.T) {
	first := StageFlags{PreSubmission: true, DischargeSummary: true}
	raw, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var second StageFlags
	if err := json.Unmarshal(raw, &second); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if second != first {
		t.Fatalf("round trip changed flags: %+v != %+v", second, first)
	}
}

func TestStatusForReturnsFirstIncompleteStage(t *testing.T) {
	cases := []struct {
		flags StageFlags
		want  Stage
	}{
		{StageFlags{}, StageBerthConfirmation},
		{StageFlags{BerthConfirmation: true}, StagePreSubmission},
		{StageFlags{BerthConfirmation: true, PreSubmission: true}, StagePortnetSubmission},
		{allComplete(), StageCompleted},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.flags); got != tc.want {
			t.Fatalf("StatusFor(%+v) = %s, want %s", tc.flags, got, tc.want)
		}
	}
}

func TestCanAdvanceRequiresEveryEarlierStage(t *testing.T) {
	cases := []struct {
		flags  StageFlags
		target Stage
		want   bool
	}{
		{StageFlags{}, StageBerthConfirmation, true},
		{StageFlags{}, StagePreSubmission, false},
		{StageFlags{BerthConfirmation: true}, StagePreSubmission, true},
		// A jump past portnet-submission without pre-submission is an
		// ordering violation before any data gate is consulted.
		{StageFlags{BerthConfirmation: true}, StagePreArrivalValidation, false},
		{StageFlags{BerthConfirmation: true}, StageVesselArrival, false},
		{StageFlags{}, StageCompleted, false},
		{allComplete(), StageCompleted, true},
		{allComplete(), Stage("bogus"), false},
	}
	for _, tc := range cases {
		if got := CanAdvance(tc.flags, tc.target); got != tc.want {
			t.Fatalf("CanAdvance(%+v, %s) = %v, want %v", tc.flags, tc.target, got, tc.want)
		}
	}
}

func TestAdvanceCompletesEverythingBeforeTarget(t *testing.T) {
	flags := Advance(StageFlags{BerthConfirmation: true, PreSubmission: true}, StagePreArrivalValidation)
	if !flags.PortnetSubmission {
		t.Fatalf("portnet-submission not completed by the jump")
	}
	if flags.PreArrivalValidation {
		t.Fatalf("target stage must stay incomplete after the jump")
	}
	if got := StatusFor(flags); got != StagePreArrivalValidation {
		t.Fatalf("status after advance = %s, want %s", got, StagePreArrivalValidation)
	}
}

func TestAdvanceIgnoresUnknownStage(t *testing.T) {
	before := StageFlags{BerthConfirmation: true}
	if after := Advance(before, Stage("bogus")); after != before {
		t.Fatalf("unknown target changed flags: %+v", after)
	}
}
