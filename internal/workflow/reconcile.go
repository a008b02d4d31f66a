package workflow

// ReconcileOutcome is the three-way result of comparing document unit
// totals against the cargo allocation plan.
type ReconcileOutcome string

const (
	ReconcileMatch    ReconcileOutcome = "match"
	ReconcileMismatch ReconcileOutcome = "mismatch"
	ReconcilePending  ReconcileOutcome = "pending"
)

// DocumentUnits is the slice of document state reconciliation needs.
type DocumentUnits struct {
	Ready bool
	Units int
}

// Reconciliation is the recomputed-on-read comparison between extracted
// document units and the allocation plan's declared total.
type Reconciliation struct {
	Outcome       ReconcileOutcome `json:"outcome"`
	DocumentUnits int              `json:"documentUnits"`
	PlanUnits     int              `json:"planUnits"`
	HasPlan       bool             `json:"hasPlan"`
}

// Reconcile sums units over ready documents and compares against the plan
// total. No plan yet means pending. The comparison is exact equality; the
// tolerance bands in tolerance.go do not apply to unit counts.
func Reconcile(docs []DocumentUnits, planUnits int, hasPlan bool) Reconciliation {
	total := 0
	for _, doc := range docs {
		if doc.Ready {
			total += doc.Units
		}
	}
	result := Reconciliation{DocumentUnits: total, PlanUnits: planUnits, HasPlan: hasPlan}
	if !hasPlan {
		result.Outcome = ReconcilePending
		return result
	}
	if total == planUnits {
		result.Outcome = ReconcileMatch
	} else {
		result.Outcome = ReconcileMismatch
	}
	return result
}
