package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"entitysync/internal/blob/core"
	"entitysync/pkg/domain"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func teamAvatarContext() domain.AssetContext {
	return domain.AssetContext{Entity: domain.Ref(domain.KindTeam, "7"), Purpose: domain.PurposeAvatar, Variants: domain.AvatarVariants}
}

func mustPolicy(t *testing.T, p Policy) domain.UploadPolicy {
	t.Helper()
	policy, err := domain.NewUploadPolicyFromValue(p)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return policy
}

// failingStore rejects writes whose key ends with failSuffix.
type failingStore struct {
	Store
	failSuffix string
}

func (s failingStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if strings.HasSuffix(key, s.failSuffix) {
		return Info{}, errors.New("bucket unavailable")
	}
	return s.Store.Put(ctx, key, r, opts)
}

func TestTransferStoresEveryVariant(t *testing.T) {
	store := NewMemory()
	var widths []int
	tr := NewTransferer(store,
		WithTransferClock(func() time.Time { return fixedNow }),
		WithResize(func(b domain.Blob, width int) (domain.Blob, error) {
			widths = append(widths, width)
			return domain.Blob{ContentType: "image/png", Data: []byte(strings.Repeat("x", width))}, nil
		}),
	)
	uploaded, err := tr.Transfer(context.Background(), domain.Blob{ContentType: "image/jpeg", Data: []byte("raw")},
		mustPolicy(t, Policy{Prefix: "teams/7/avatar"}), domain.AvatarVariants[:1])
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(uploaded) != 1 || uploaded[0].Variant.Name != "large" {
		t.Fatalf("unexpected uploads %+v", uploaded)
	}
	if !strings.HasPrefix(uploaded[0].Key, "teams/7/avatar/") || !strings.HasSuffix(uploaded[0].Key, "/large") {
		t.Fatalf("unexpected key %q", uploaded[0].Key)
	}
	info, err := store.Head(context.Background(), uploaded[0].Key)
	if err != nil || info.Size != 300 || info.ContentType != "image/png" || info.Metadata["variant"] != "large" {
		t.Fatalf("unexpected stored variant %+v %v", info, err)
	}
	if len(widths) != 1 || widths[0] != 300 {
		t.Fatalf("unexpected resize widths %v", widths)
	}

	all, err := NewTransferer(store).Transfer(context.Background(), domain.Blob{Data: []byte("raw")},
		mustPolicy(t, Policy{Prefix: "teams/7/avatar"}), domain.AvatarVariants)
	if err != nil || len(all) != 3 {
		t.Fatalf("transfer all: %+v %v", all, err)
	}
	for i, v := range domain.AvatarVariants {
		if all[i].Variant != v || all[i].URL != all[i].Key {
			t.Fatalf("variant %d out of order or missing url: %+v", i, all[i])
		}
	}
}

func TestTransferCleansUpOnPartialFailure(t *testing.T) {
	mem := NewMemory()
	tr := NewTransferer(failingStore{Store: mem, failSuffix: "/small"})
	_, err := tr.Transfer(context.Background(), domain.Blob{Data: []byte("raw")},
		mustPolicy(t, Policy{Prefix: "teams/7/avatar"}), domain.AvatarVariants)
	if err == nil || !strings.Contains(err.Error(), "bucket unavailable") {
		t.Fatalf("expected store failure, got %v", err)
	}
	left, err := mem.List(context.Background(), "teams/7/avatar/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected uploaded variants to be removed, got %+v", left)
	}
}

func TestTransferRejectsUnusablePolicies(t *testing.T) {
	tr := NewTransferer(NewMemory(), WithTransferClock(func() time.Time { return fixedNow }))
	cases := []struct {
		name   string
		policy domain.UploadPolicy
	}{
		{"no prefix", mustPolicy(t, Policy{})},
		{"expired", mustPolicy(t, Policy{Prefix: "users/3/avatar", ExpiresAt: fixedNow.Add(-time.Minute)})},
		{"malformed", domain.NewUploadPolicy([]byte(`[1,2]`))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tr.Transfer(context.Background(), domain.Blob{Data: []byte("x")}, tc.policy, domain.OriginalVariants); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestTransferResizeFailure(t *testing.T) {
	mem := NewMemory()
	tr := NewTransferer(mem, WithResize(func(domain.Blob, int) (domain.Blob, error) {
		return domain.Blob{}, errors.New("not an image")
	}))
	if _, err := tr.Transfer(context.Background(), domain.Blob{Data: []byte("x")}, mustPolicy(t, Policy{Prefix: "teams/7/cover"}), domain.CoverVariants); err == nil {
		t.Fatalf("expected resize error")
	}
	if left, _ := mem.List(context.Background(), ""); len(left) != 0 {
		t.Fatalf("nothing should be stored, got %+v", left)
	}
}

func TestIssuePolicy(t *testing.T) {
	ctx := context.Background()
	mem, err := IssuePolicy(ctx, NewMemory(), teamAvatarContext(), 0, fixedNow)
	if err != nil {
		t.Fatalf("issue memory: %v", err)
	}
	if mem.Prefix != "teams/7/avatar" || len(mem.Uploads) != 0 || !mem.ExpiresAt.Equal(fixedNow.Add(core.DefaultPresignExpiry)) {
		t.Fatalf("unexpected memory policy %+v", mem)
	}

	s3, err := IssuePolicy(ctx, NewMockS3ForTests(), teamAvatarContext(), time.Minute, fixedNow)
	if err != nil {
		t.Fatalf("issue s3: %v", err)
	}
	if len(s3.Uploads) != 3 || len(s3.URLs) != 3 {
		t.Fatalf("expected presigned uploads for every variant, got %+v", s3)
	}
	if !strings.Contains(s3.Uploads["medium"], "teams/7/avatar/") || !strings.Contains(s3.Uploads["medium"], "/medium") {
		t.Fatalf("unexpected upload url %q", s3.Uploads["medium"])
	}

	decoded, err := DecodePolicy(mustPolicy(t, s3))
	if err != nil || decoded.Uploads["small"] != s3.Uploads["small"] {
		t.Fatalf("round trip: %+v %v", decoded, err)
	}
}

func TestNewObjectIDIsTimeOrdered(t *testing.T) {
	a := NewObjectID(fixedNow)
	b := NewObjectID(fixedNow.Add(time.Second))
	if len(a) != 26 || a >= b {
		t.Fatalf("expected ordered ids, got %s %s", a, b)
	}
}
