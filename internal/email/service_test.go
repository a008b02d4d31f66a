package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "ops@example.com"}, expected: false},
		{name: "missing port", config: Config{Host: "smtp.example.com", From: "ops@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{name: "fully configured", config: Config{Host: "smtp.example.com", Port: "587", From: "ops@example.com"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSendEmailUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendEmail([]string{"ops@example.com"}, "subject", "body"); err == nil {
		t.Fatal("expected error for unconfigured service")
	}
}

func TestManifestStatusTemplateRenders(t *testing.T) {
	html, err := renderTemplate(manifestStatusEmailTemplate, ManifestStatusData{
		AppName:        "CargoOps",
		OperatorName:   "Wei Ling",
		VesselName:     "MV Pacific Harmony",
		VoyageNumber:   "041E",
		ManifestNumber: "MFST-2025-0001",
		Status:         "rejected",
		Reason:         "unit count mismatch",
	})
	if err != nil {
		t.Fatalf("renderTemplate: %v", err)
	}
	for _, want := range []string{"MFST-2025-0001", "MV Pacific Harmony", "rejected", "unit count mismatch"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered template missing %q", want)
		}
	}
}

func TestDocumentReviewTemplateOmitsEmptyNotes(t *testing.T) {
	html, err := renderTemplate(documentReviewEmailTemplate, DocumentReviewData{
		AppName:      "CargoOps",
		OperatorName: "Wei Ling",
		FileName:     "bl-voy-041e.pdf",
		Decision:     "approved",
	})
	if err != nil {
		t.Fatalf("renderTemplate: %v", err)
	}
	if strings.Contains(html, "Reviewer notes") {
		t.Error("notes block rendered for empty notes")
	}
}
