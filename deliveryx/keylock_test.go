package deliveryx

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/wabridge/msgx"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(lockKey("91", "A"))
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected one holder at a time, got %d", maxInside)
	}
	if k.size() != 0 {
		t.Errorf("expected released keys to be dropped, got %d", k.size())
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock(lockKey("91", "A"))
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock(lockKey("91", "B"))
		unlock()
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different keys must not block each other")
	}
}

func TestFinishOutcome(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	r := DeliveryRecord{Outcome: OutcomeInProgress}
	r.finish(at, nil)
	if r.Outcome != OutcomeSuccess || r.CompletedAt == nil || !r.CompletedAt.Equal(at) {
		t.Errorf("expected success at %v, got %+v", at, r)
	}

	r = DeliveryRecord{Outcome: OutcomeInProgress, MessageIDs: []string{"wamid.1"}}
	r.finish(at, msgx.DeliveryRegistry.New(msgx.ErrRateLimited))
	if r.Outcome != OutcomePartial || r.ErrorKind != "RATE_LIMITED" {
		t.Errorf("expected partial/RATE_LIMITED, got %s/%s", r.Outcome, r.ErrorKind)
	}

	r = DeliveryRecord{Outcome: OutcomeInProgress}
	r.finish(at, errors.New("plain"))
	if r.Outcome != OutcomeFailed || r.ErrorKind != "UNKNOWN" || r.Error != "plain" {
		t.Errorf("expected failed/UNKNOWN, got %+v", r)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	at := time.Now()
	r := DeliveryRecord{MessageIDs: []string{"a"}, CompletedAt: &at}
	c := r.Clone()
	c.MessageIDs[0] = "b"
	*c.CompletedAt = at.Add(time.Hour)
	if r.MessageIDs[0] != "a" || !r.CompletedAt.Equal(at) {
		t.Error("clone must not share state with the original")
	}
}
