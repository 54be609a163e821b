package domain

import (
	"context"
	"encoding/json"
	"time"
)

// UploadPolicy wraps the opaque upload target returned by the remote API.
// Callers that understand a concrete policy format unmarshal the raw bytes.
type UploadPolicy struct {
	defined bool
	raw     json.RawMessage
}

// NewUploadPolicy builds a policy wrapper from raw JSON. The bytes are cloned
// to prevent callers from mutating shared state. Passing a nil slice yields a
// defined but empty policy.
func NewUploadPolicy(raw json.RawMessage) UploadPolicy {
	policy := UploadPolicy{defined: true}
	if raw != nil {
		policy.raw = cloneRawMessage(raw)
	}
	return policy
}

// NewUploadPolicyFromValue marshals a typed value into an UploadPolicy.
func NewUploadPolicyFromValue[T any](value T) (UploadPolicy, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return UploadPolicy{}, err
	}
	return NewUploadPolicy(raw), nil
}

// Defined reports whether the policy has been initialized.
func (p UploadPolicy) Defined() bool {
	return p.defined
}

// IsEmpty reports whether the policy contains no bytes.
func (p UploadPolicy) IsEmpty() bool {
	if !p.defined {
		return true
	}
	return len(p.raw) == 0
}

// Raw returns a cloned copy of the underlying JSON bytes. Nil is returned when
// the policy is undefined or empty.
func (p UploadPolicy) Raw() json.RawMessage {
	if !p.defined || len(p.raw) == 0 {
		return nil
	}
	return cloneRawMessage(p.raw)
}

// Decode unmarshals the policy into dst.
func (p UploadPolicy) Decode(dst any) error {
	if p.IsEmpty() {
		return json.Unmarshal([]byte("{}"), dst)
	}
	return json.Unmarshal(p.raw, dst)
}

// ExpiresAt returns the policy's expiry. The boolean is false when the
// policy does not carry one.
func (p UploadPolicy) ExpiresAt() (time.Time, bool) {
	var doc struct {
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := p.Decode(&doc); err != nil || doc.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return doc.ExpiresAt, true
}

// SingleUse reports whether the policy names presigned upload targets. Those
// point at fixed object keys and must not serve a second upload.
func (p UploadPolicy) SingleUse() bool {
	var doc struct {
		Uploads map[string]string `json:"uploads"`
	}
	if err := p.Decode(&doc); err != nil {
		return true
	}
	return len(doc.Uploads) > 0
}

func cloneRawMessage(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(raw))
	copy(cloned, raw)
	return cloned
}

// AssetPurpose names what an uploaded image is used for.
type AssetPurpose string

// Supported purposes with their policy endpoints.
const (
	PurposeAvatar AssetPurpose = "avatar"
	PurposeCover  AssetPurpose = "cover"
)

// PolicyRoute returns the policy endpoint segment for the purpose.
func (p AssetPurpose) PolicyRoute() string {
	return string(p) + "ImagePolicy"
}

// Variant is one size of an uploaded image. A zero Width keeps the original.
type Variant struct {
	Name  string `json:"name"`
	Width int    `json:"width"`
}

// Standard variant sets.
var (
	AvatarVariants   = []Variant{{Name: "large", Width: 300}, {Name: "medium", Width: 150}, {Name: "small", Width: 60}}
	CoverVariants    = []Variant{{Name: "large", Width: 1200}, {Name: "medium", Width: 700}, {Name: "small", Width: 450}}
	OriginalVariants = []Variant{{Name: "original"}}
)

// AssetContext scopes an upload to an entity and purpose.
type AssetContext struct {
	Entity   EntityRef
	Purpose  AssetPurpose
	Variants []Variant
}

// PolicyPath returns the remote path of the upload policy.
func (c AssetContext) PolicyPath() string {
	return c.Entity.Kind.Plural() + "/" + c.Entity.ID + "/" + c.Purpose.PolicyRoute()
}

// Blob is an image payload to upload.
type Blob struct {
	ContentType string
	Data        []byte
}

// UploadedVariant records where a variant landed.
type UploadedVariant struct {
	Variant Variant `json:"variant"`
	Key     string  `json:"key"`
	URL     string  `json:"url"`
}

// AssetTransferer moves a blob to the targets described by a policy. Either
// every variant is stored or an error is returned.
type AssetTransferer interface {
	Transfer(ctx context.Context, blob Blob, policy UploadPolicy, variants []Variant) ([]UploadedVariant, error)
}

// DeriveFunc computes attributes from a decoded image, e.g. its dominant colour.
type DeriveFunc func(blob Blob) (string, error)
