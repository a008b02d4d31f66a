package extract

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeProvider blocks until released so tests control job timing.
type fakeProvider struct {
	release chan struct{}
	result  Result
	err     error
}

func (f *fakeProvider) Extract(ctx context.Context, documentType, fileName string) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-f.release:
	}
	return f.result, f.err
}

func TestManagerRunsJobToCompletion(t *testing.T) {
	provider := &fakeProvider{
		release: make(chan struct{}),
		result:  Result{Fields: map[string]Field{"blNumber": {Value: "HDGL00000001", Confidence: 97}}, OverallConfidence: 97},
	}
	manager := NewManager(provider)

	done := make(chan Result, 1)
	err := manager.Start("doc_1", "bill-of-lading", "bl.pdf", func(id string, result Result, err error) {
		if err != nil {
			t.Errorf("done callback err = %v", err)
		}
		if id != "doc_1" {
			t.Errorf("done callback id = %s", id)
		}
		done <- result
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !manager.Processing("doc_1") {
		t.Fatalf("expected doc_1 in flight")
	}

	close(provider.release)
	select {
	case result := <-done:
		if result.OverallConfidence != 97 {
			t.Fatalf("overall confidence = %d, want 97", result.OverallConfidence)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for completion")
	}
	if manager.Processing("doc_1") {
		t.Fatalf("job not cleared after completion")
	}
}

func TestManagerRejectsConcurrentSameDocument(t *testing.T) {
	provider := &fakeProvider{release: make(chan struct{})}
	manager := NewManager(provider)

	noop := func(string, Result, error) {}
	if err := manager.Start("doc_1", "bill-of-lading", "bl.pdf", noop); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := manager.Start("doc_1", "bill-of-lading", "bl.pdf", noop); !errors.Is(err, ErrAlreadyProcessing) {
		t.Fatalf("second Start err = %v, want ErrAlreadyProcessing", err)
	}
	// Distinct documents run concurrently.
	if err := manager.Start("doc_2", "bill-of-lading", "other.pdf", noop); err != nil {
		t.Fatalf("Start doc_2: %v", err)
	}
	close(provider.release)
}

func TestManagerCancelStopsJob(t *testing.T) {
	provider := &fakeProvider{release: make(chan struct{})}
	manager := NewManager(provider)

	done := make(chan error, 1)
	if err := manager.Start("doc_1", "bill-of-lading", "bl.pdf", func(_ string, _ Result, err error) {
		done <- err
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if !manager.Cancel("doc_1") {
		t.Fatalf("Cancel found no job")
	}
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("done err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for cancellation")
	}
	if manager.Cancel("doc_1") {
		t.Fatalf("Cancel after completion should find no job")
	}
}

func TestManagerRestartAfterCompletion(t *testing.T) {
	provider := &fakeProvider{release: make(chan struct{})}
	manager := NewManager(provider)

	var wg sync.WaitGroup
	wg.Add(1)
	if err := manager.Start("doc_1", "bill-of-lading", "bl.pdf", func(string, Result, error) { wg.Done() }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	close(provider.release)
	wg.Wait()

	provider.release = make(chan struct{})
	close(provider.release)
	if err := manager.Start("doc_1", "bill-of-lading", "bl.pdf", func(string, Result, error) {}); err != nil {
		t.Fatalf("restart after completion: %v", err)
	}
}

func TestMockProviderDeterministic(t *testing.T) {
	provider := &MockProvider{}
	first, err := provider.Extract(context.Background(), "bill-of-lading", "bl-voy-041e.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	second, err := provider.Extract(context.Background(), "bill-of-lading", "bl-voy-041e.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(first.Fields) != len(BLFieldNames) {
		t.Fatalf("extracted %d fields, want %d", len(first.Fields), len(BLFieldNames))
	}
	for _, name := range BLFieldNames {
		if first.Fields[name] != second.Fields[name] {
			t.Fatalf("field %s differs across runs: %+v vs %+v", name, first.Fields[name], second.Fields[name])
		}
	}

	other, err := provider.Extract(context.Background(), "bill-of-lading", "different.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if other.Fields["blNumber"] == first.Fields["blNumber"] {
		t.Fatalf("distinct seeds produced identical BL numbers")
	}
}

func TestMockProviderOverallConfidenceIsFieldMean(t *testing.T) {
	provider := &MockProvider{}
	result, err := provider.Extract(context.Background(), "bill-of-lading", "bl-voy-041e.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	total := 0
	for _, name := range BLFieldNames {
		total += result.Fields[name].Confidence
	}
	mean := (total + len(BLFieldNames)/2) / len(BLFieldNames)
	if result.OverallConfidence != mean {
		t.Fatalf("overall confidence = %d, want rounded mean %d", result.OverallConfidence, mean)
	}
}

func TestMockProviderFailsOnCorruptFile(t *testing.T) {
	provider := &MockProvider{}
	if _, err := provider.Extract(context.Background(), "bill-of-lading", "scan-corrupt.pdf"); err == nil {
		t.Fatalf("expected extraction failure for corrupt scan")
	}
}
