package pagination

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxConcurrency != 5 {
		t.Errorf("MaxConcurrency = %d, want 5", config.MaxConcurrency)
	}
	if config.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %v, want 2m", config.Timeout)
	}
}

func TestCollectAll_AllSucceed(t *testing.T) {
	var paginators []*testPaginator
	for i := 0; i < 4; i++ {
		svc := newFakeService()
		svc.page("", "T1", "a")
		svc.page("T1", "", "b")
		paginators = append(paginators, newTestPaginator(svc))
	}

	results, err := CollectAll(context.Background(), Config{MaxConcurrency: 2}, paginators)
	if err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}
	for i := 0; i < 4; i++ {
		got := results[i]
		if len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Errorf("results[%d] = %v, want [a b]", i, got)
		}
	}
}

func TestCollectAll_PartialFailure(t *testing.T) {
	ok := newFakeService()
	ok.page("", "", "x")

	broken := newFakeService()
	broken.page("", "T1", "y")
	broken.fail("T1", errors.New("access denied"))

	paginators := []*testPaginator{newTestPaginator(ok), newTestPaginator(broken), newTestPaginator(ok)}

	results, err := CollectAll(context.Background(), DefaultConfig(), paginators)
	if err == nil {
		t.Fatal("CollectAll() error = nil, want partial failure")
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("error %v does not wrap *TransportError", err)
	}
	if _, found := results[1]; found {
		t.Error("failed paginator should not appear in results")
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
}

func TestCollectAll_SinglePaginator(t *testing.T) {
	svc := newFakeService()
	svc.page("", "", "only")

	results, err := CollectAll(context.Background(), Config{}, []*testPaginator{newTestPaginator(svc)})
	if err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}
	if got := results[0]; len(got) != 1 || got[0] != "only" {
		t.Errorf("results[0] = %v, want [only]", got)
	}
}

func TestCollectAll_Empty(t *testing.T) {
	results, err := CollectAll(context.Background(), DefaultConfig(), []*testPaginator(nil))
	if err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestCollectAll_RespectsConcurrency(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32

	client := ClientFunc[*testInput, *testOutput](func(ctx context.Context, in *testInput) (*testOutput, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return &testOutput{Items: []string{in.Query}}, nil
	})

	var paginators []*testPaginator
	for i := 0; i < 10; i++ {
		paginators = append(paginators, New[*testInput, *testOutput, string](client, &testInput{Query: "q"}))
	}

	if _, err := CollectAll(context.Background(), Config{MaxConcurrency: 3}, paginators); err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}

	if got := maxInFlight.Load(); got > 3 {
		t.Errorf("max concurrent fetches = %d, want <= 3", got)
	}
}

func TestCollectAll_Timeout(t *testing.T) {
	slow := newFakeService()
	slow.page("", "", "late")
	release := slow.gate("")
	defer close(release)

	fast := newFakeService()
	fast.page("", "", "early")

	paginators := []*testPaginator{newTestPaginator(fast), newTestPaginator(slow)}

	results, err := CollectAll(context.Background(), Config{MaxConcurrency: 2, Timeout: 20 * time.Millisecond}, paginators)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("CollectAll() error = %v, want deadline exceeded", err)
	}
	if got := results[0]; len(got) != 1 || got[0] != "early" {
		t.Errorf("results[0] = %v, want [early]", got)
	}
}
