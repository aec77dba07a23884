package inbound

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestClaimStore(start time.Time) (*InMemoryClaimStore, *time.Time) {
	store := NewInMemoryClaimStore()
	current := start
	store.Now = func() time.Time { return current }
	return store, &current
}

func TestClaimWinsOnceUntilComplete(t *testing.T) {
	store, _ := newTestClaimStore(time.Unix(1_700_000_000, 0).UTC())

	claimID, accepted, err := store.Claim(context.Background(), "key-1", time.Minute)
	if err != nil || !accepted {
		t.Fatalf("first claim: accepted=%v err=%v", accepted, err)
	}
	if claimID == "" {
		t.Fatalf("expected claim id")
	}

	_, accepted, err = store.Claim(context.Background(), "key-1", time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if accepted {
		t.Fatalf("in-flight key must not be claimable")
	}
}

func TestCompletedClaimStaysDedupedForTTL(t *testing.T) {
	store, current := newTestClaimStore(time.Unix(1_700_000_000, 0).UTC())

	claimID, _, err := store.Claim(context.Background(), "key-1", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Complete(context.Background(), claimID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, accepted, err := store.Claim(context.Background(), "key-1", time.Minute)
	if err != nil {
		t.Fatalf("claim after complete: %v", err)
	}
	if accepted {
		t.Fatalf("completed key must dedupe inside the ttl")
	}

	*current = current.Add(2 * time.Minute)
	_, accepted, err = store.Claim(context.Background(), "key-1", time.Minute)
	if err != nil {
		t.Fatalf("claim after ttl: %v", err)
	}
	if !accepted {
		t.Fatalf("key must be claimable after the ttl expires")
	}
}

func TestFailedClaimIsReclaimableAtRetryTime(t *testing.T) {
	start := time.Unix(1_700_000_000, 0).UTC()
	store, current := newTestClaimStore(start)

	claimID, _, err := store.Claim(context.Background(), "key-1", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	retryAt := start.Add(30 * time.Second)
	if err := store.Fail(context.Background(), claimID, errors.New("enqueue down"), retryAt); err != nil {
		t.Fatalf("fail: %v", err)
	}

	_, accepted, err := store.Claim(context.Background(), "key-1", time.Minute)
	if err != nil {
		t.Fatalf("claim before retry time: %v", err)
	}
	if accepted {
		t.Fatalf("key must stay held until the retry time")
	}

	*current = retryAt.Add(time.Second)
	_, accepted, err = store.Claim(context.Background(), "key-1", time.Minute)
	if err != nil {
		t.Fatalf("claim after retry time: %v", err)
	}
	if !accepted {
		t.Fatalf("failed key must become reclaimable")
	}
}

func TestExpiredProcessingLeaseIsReclaimable(t *testing.T) {
	store, current := newTestClaimStore(time.Unix(1_700_000_000, 0).UTC())

	if _, _, err := store.Claim(context.Background(), "key-1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	*current = current.Add(2 * time.Minute)
	_, accepted, err := store.Claim(context.Background(), "key-1", time.Minute)
	if err != nil {
		t.Fatalf("claim after lease expiry: %v", err)
	}
	if !accepted {
		t.Fatalf("crashed holder's lease must expire")
	}
}

func TestCompleteUnknownClaimIsNoop(t *testing.T) {
	store, _ := newTestClaimStore(time.Unix(1_700_000_000, 0).UTC())
	if err := store.Complete(context.Background(), "claim_404"); err != nil {
		t.Fatalf("unknown claim id must be a noop: %v", err)
	}
}

func TestClaimRequiresKey(t *testing.T) {
	store, _ := newTestClaimStore(time.Unix(1_700_000_000, 0).UTC())
	if _, _, err := store.Claim(context.Background(), "   ", time.Minute); err == nil {
		t.Fatalf("blank key must be rejected")
	}
}
