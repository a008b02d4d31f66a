package manifestrepo

import (
	"os"
	"path/filepath"
	"testing"

	"cargoops/api/internal/store"
)

func baselineSnapshot() Snapshot {
	return Snapshot{
		ManifestNumber: "MFST-2025-0001",
		Status:         store.ManifestDraft,
		Cargo: []store.CargoItem{
			{BLNumber: "HDGL00000001", Description: "Passenger motor vehicles, new", Units: 120, Weight: 180.5, CBM: 1440, Consignee: "Borneo Motors Singapore"},
		},
	}
}

func TestManifestRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureRepo("ship_1", baselineSnapshot(), "Wei Ling"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "ship_1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}
	// Idempotent for an existing repo.
	if err := svc.EnsureRepo("ship_1", baselineSnapshot(), "Wei Ling"); err != nil {
		t.Fatalf("EnsureRepo() second call error = %v", err)
	}

	updated := baselineSnapshot()
	updated.Cargo = append(updated.Cargo, store.CargoItem{
		BLNumber: "HDGL00000002", Description: "Commercial vans, new", Units: 40, Weight: 72, CBM: 520, Consignee: "Cycle & Carriage Pte",
	})
	commit, err := svc.CommitSnapshot("ship_1", updated, "Wei Ling", "Add second BL line")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	history, err := svc.History("ship_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Message != "Add second BL line" {
		t.Fatalf("newest commit message = %q", history[0].Message)
	}

	snapshot, err := svc.GetSnapshotByHash("ship_1", commit.Hash)
	if err != nil {
		t.Fatalf("GetSnapshotByHash() error = %v", err)
	}
	if len(snapshot.Cargo) != 2 {
		t.Fatalf("snapshot cargo lines = %d, want 2", len(snapshot.Cargo))
	}
}

func TestTagSubmissionIdempotent(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureRepo("ship_2", baselineSnapshot(), "Wei Ling"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}
	submitted := baselineSnapshot()
	submitted.Status = store.ManifestSubmitted
	commit, err := svc.CommitSnapshot("ship_2", submitted, "Wei Ling", "Submit manifest")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}

	if err := svc.TagSubmission("ship_2", commit.Hash, "submission-1"); err != nil {
		t.Fatalf("TagSubmission() error = %v", err)
	}
	if err := svc.TagSubmission("ship_2", commit.Hash, "submission-1"); err != nil {
		t.Fatalf("TagSubmission() retag error = %v", err)
	}
}

func TestDiffFields(t *testing.T) {
	from := baselineSnapshot()
	to := baselineSnapshot()
	to.Status = store.ManifestSubmitted
	to.Cargo[0].Units = 130

	diff := DiffFields(from, to)
	if len(diff) != 2 {
		t.Fatalf("diff length = %d, want 2: %v", len(diff), diff)
	}
	if diff[0]["field"] != "cargo" || diff[1]["field"] != "status" {
		t.Fatalf("unexpected diff fields: %v", diff)
	}

	if got := DiffFields(from, baselineSnapshot()); len(got) != 0 {
		t.Fatalf("expected empty diff for identical snapshots, got %v", got)
	}
}
