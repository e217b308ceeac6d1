package asyncx

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAsyncAllKeepsOrder(t *testing.T) {
	items := []int{3, 1, 2}
	got, err := AsyncAll(context.Background(), items, func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0] != 30 || got[1] != 10 || got[2] != 20 {
		t.Errorf("expected results in input order, got %v", got)
	}
}

func TestAsyncAllFirstErrorCancels(t *testing.T) {
	boom := errors.New("boom")
	_, err := AsyncAll(context.Background(), []int{0, 1}, func(ctx context.Context, n int) (int, error) {
		if n == 0 {
			return 0, boom
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(2 * time.Second):
			return n, nil
		}
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestSettleReportsEverything(t *testing.T) {
	res := Settle(context.Background(), []string{"ok", "bad"}, func(_ context.Context, s string) (string, error) {
		if s == "bad" {
			return "", errors.New("bad item")
		}
		return strings.ToUpper(s), nil
	})
	if res[0].Value != "OK" || res[0].Err != nil {
		t.Errorf("unexpected first result: %+v", res[0])
	}
	if res[1].Err == nil {
		t.Error("expected second result to carry an error")
	}
}

func TestForEachGroupSequentialWithinGroup(t *testing.T) {
	type ev struct {
		from string
		n    int
	}
	items := []ev{{"a", 1}, {"b", 1}, {"a", 2}, {"a", 3}, {"b", 2}}

	var (
		mu   sync.Mutex
		seen = map[string][]int{}
	)
	errs := ForEachGroup(context.Background(), items, func(e ev) string { return e.from }, func(_ context.Context, e ev) error {
		mu.Lock()
		seen[e.from] = append(seen[e.from], e.n)
		mu.Unlock()
		if e.from == "b" && e.n == 1 {
			panic("subscriber blew up")
		}
		return nil
	})

	if got := seen["a"]; len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("expected group a in order, got %v", got)
	}
	if len(seen["b"]) != 2 {
		t.Errorf("expected group b to continue after panic, got %v", seen["b"])
	}
	if errs[1] == nil || !strings.Contains(errs[1].Error(), "panic") {
		t.Errorf("expected panic error at index 1, got %v", errs[1])
	}
	for i, e := range errs {
		if i != 1 && e != nil {
			t.Errorf("unexpected error at %d: %v", i, e)
		}
	}
}
