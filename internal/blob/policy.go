package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"entitysync/internal/blob/core"
	"entitysync/pkg/domain"
)

// Policy is the upload policy document issued for one (entity, purpose)
// scope. Prefix is where direct transfers write; Uploads holds presigned PUT
// targets per variant name when the backing store can sign them.
type Policy struct {
	Prefix    string            `json:"prefix"`
	Uploads   map[string]string `json:"uploads,omitempty"`
	URLs      map[string]string `json:"urls,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt,omitempty"`
}

// DecodePolicy unpacks the opaque policy carried by the asset pipeline.
func DecodePolicy(p domain.UploadPolicy) (Policy, error) {
	var policy Policy
	if err := p.Decode(&policy); err != nil {
		return Policy{}, fmt.Errorf("decode upload policy: %w", err)
	}
	return policy, nil
}

// ScopePrefix returns the key prefix for uploads scoped to actx, e.g.
// "teams/7/avatar".
func ScopePrefix(actx domain.AssetContext) string {
	return path.Join(actx.Entity.Kind.Plural(), actx.Entity.ID, string(actx.Purpose))
}

// NewObjectID returns a time-ordered identifier for one upload.
func NewObjectID(now time.Time) string {
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String())
}

// IssuePolicy builds a policy for actx. Presigned PUT URLs are included when
// store supports them; otherwise clients must transfer through a Transferer
// bound to the same store.
func IssuePolicy(ctx context.Context, store Store, actx domain.AssetContext, expiry time.Duration, now time.Time) (Policy, error) {
	if expiry <= 0 {
		expiry = core.DefaultPresignExpiry
	}
	policy := Policy{Prefix: ScopePrefix(actx), ExpiresAt: now.Add(expiry).UTC()}
	objectID := NewObjectID(now)
	for _, v := range actx.Variants {
		key := path.Join(policy.Prefix, objectID, v.Name)
		put, err := store.PresignURL(ctx, key, SignedURLOptions{Method: http.MethodPut, Expiry: expiry})
		if errors.Is(err, ErrUnsupported) {
			return Policy{Prefix: policy.Prefix, ExpiresAt: policy.ExpiresAt}, nil
		}
		if err != nil {
			return Policy{}, fmt.Errorf("presign %s: %w", key, err)
		}
		if policy.Uploads == nil {
			policy.Uploads = make(map[string]string, len(actx.Variants))
			policy.URLs = make(map[string]string, len(actx.Variants))
		}
		policy.Uploads[v.Name] = put
		policy.URLs[v.Name] = objectURL(ctx, store, key)
	}
	return policy, nil
}

// objectURL resolves where a stored key is readable from: the store's public
// URL when configured, else a presigned GET, else the bare key.
func objectURL(ctx context.Context, store Store, key string) string {
	if info, err := store.Head(ctx, key); err == nil && info.URL != "" {
		return info.URL
	}
	if u, err := store.PresignURL(ctx, key, SignedURLOptions{Method: http.MethodGet}); err == nil {
		return u
	}
	return key
}
