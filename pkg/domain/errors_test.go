package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMutationErrorMatchesKindSentinel(t *testing.T) {
	ref := Ref(KindTeam, "7")
	cases := []struct {
		err      *MutationError
		sentinel error
	}{
		{InvariantViolation(ref, Block("r", MutationIntent{Entity: ref}, "at least one admin required")), ErrInvariantViolation},
		{NetworkFailure(ref, errors.New("boom")), ErrNetworkFailure},
		{Timeout(ref, nil), ErrTimeout},
		{NotFound(ref, ""), ErrNotFound},
		{PartialUpload(ref, errors.New("small failed")), ErrPartialUpload},
		{UnreadableAsset(ref, errors.New("unknown format")), ErrUnreadableAsset},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		if !errors.Is(wrapped, tc.sentinel) {
			t.Fatalf("expected %v to match %v", tc.err, tc.sentinel)
		}
		if tc.sentinel != ErrNotFound && errors.Is(tc.err, ErrNotFound) {
			t.Fatalf("unexpected match on unrelated sentinel")
		}
		if tc.sentinel != ErrInvariantViolation && errors.Is(tc.err, ErrInvariantViolation) {
			t.Fatalf("%v must not match the invariant sentinel", tc.err)
		}
		kind, ok := KindOf(wrapped)
		if !ok || kind != tc.err.Kind {
			t.Fatalf("expected kind %s, got %s", tc.err.Kind, kind)
		}
	}
}

func TestMutationErrorUserMessage(t *testing.T) {
	ref := Ref(KindCollection, "4")
	invariant := InvariantViolation(ref, Block("r", MutationIntent{Entity: ref}, "at least one admin required"))
	if invariant.UserMessage() != "at least one admin required" {
		t.Fatalf("unexpected message %q", invariant.UserMessage())
	}
	remote := NetworkFailure(ref, &RemoteError{Status: 409, Message: "Collection is full"})
	if remote.UserMessage() != "Collection is full" {
		t.Fatalf("expected remote message, got %q", remote.UserMessage())
	}
	if !errors.As(remote, new(*RemoteError)) {
		t.Fatalf("expected remote error in chain")
	}
	generic := NetworkFailure(ref, errors.New("dial tcp: refused"))
	if generic.UserMessage() == "" || generic.UserMessage() == generic.Error() {
		t.Fatalf("expected generic user message, got %q", generic.UserMessage())
	}
}

func TestUploadPolicyMetadata(t *testing.T) {
	expiry := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		raw       string
		expires   time.Time
		hasExpiry bool
		singleUse bool
	}{
		{name: "presigned", raw: `{"prefix":"teams/7/avatar","uploads":{"original":"https://bucket.test/put"},"expiresAt":"2000-01-01T00:00:00Z"}`, expires: expiry, hasExpiry: true, singleUse: true},
		{name: "prefix only", raw: `{"prefix":"teams/7/avatar"}`},
		{name: "empty", raw: ``},
		{name: "malformed", raw: `[`, singleUse: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := NewUploadPolicy([]byte(tc.raw))
			got, ok := policy.ExpiresAt()
			if ok != tc.hasExpiry || !got.Equal(tc.expires) {
				t.Fatalf("ExpiresAt = %v, %v", got, ok)
			}
			if policy.SingleUse() != tc.singleUse {
				t.Fatalf("SingleUse = %v", policy.SingleUse())
			}
		})
	}
}
