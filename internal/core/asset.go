package core

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"entitysync/pkg/domain"
)

// FieldUpdate is the attribute patch produced by an upload.
type FieldUpdate map[string]any

// AssetHost is the view-side surface the pipeline submits through.
type AssetHost interface {
	Mutator
	Call(ctx context.Context, method, path string, body any) (domain.Response, error)
	Notify(message string, severity domain.NotifySeverity)
}

// PolicyCache keeps upload policies per (kind, id, purpose) until they
// expire. An entry lives for the cache TTL or until the policy's own
// expiresAt, whichever comes first.
type PolicyCache struct {
	lru *expirable.LRU[string, domain.UploadPolicy]
	now func() time.Time
}

// Policy cache defaults.
const (
	DefaultPolicyCacheSize = 128
	DefaultPolicyTTL       = 10 * time.Minute
)

// NewPolicyCache constructs a cache. Non-positive arguments select defaults.
func NewPolicyCache(size int, ttl time.Duration) *PolicyCache {
	if size <= 0 {
		size = DefaultPolicyCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultPolicyTTL
	}
	return &PolicyCache{
		lru: expirable.NewLRU[string, domain.UploadPolicy](size, nil, ttl),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (c *PolicyCache) get(key string) (domain.UploadPolicy, bool) {
	if c == nil {
		return domain.UploadPolicy{}, false
	}
	policy, ok := c.lru.Get(key)
	if !ok {
		return domain.UploadPolicy{}, false
	}
	if c.expired(policy) {
		c.lru.Remove(key)
		return domain.UploadPolicy{}, false
	}
	return policy, true
}

func (c *PolicyCache) add(key string, policy domain.UploadPolicy) {
	if c == nil || c.expired(policy) {
		return
	}
	c.lru.Add(key, policy)
}

func (c *PolicyCache) expired(policy domain.UploadPolicy) bool {
	expiresAt, ok := policy.ExpiresAt()
	return ok && !c.now().Before(expiresAt)
}

// Invalidate drops a cached policy, e.g. after the target rejected it.
func (c *PolicyCache) Invalidate(actx domain.AssetContext) {
	if c == nil {
		return
	}
	c.lru.Remove(actx.PolicyPath())
}

// AssetPipeline uploads an image and patches the owning entity. The steps
// run strictly in order: policy request, variant transfer, attribute
// derivation. A failing step aborts before any mutation is submitted.
type AssetPipeline struct {
	host       AssetHost
	transferer domain.AssetTransferer
	derive     domain.DeriveFunc
	policies   *PolicyCache
	logger     Logger
}

// NewAssetPipeline constructs a pipeline submitting through host.
func NewAssetPipeline(host AssetHost, transferer domain.AssetTransferer, derive domain.DeriveFunc, policies *PolicyCache, logger Logger) *AssetPipeline {
	if logger == nil {
		logger = noopLogger{}
	}
	return &AssetPipeline{host: host, transferer: transferer, derive: derive, policies: policies, logger: logger}
}

// RequestPolicy obtains the upload policy for actx, reusing a cached one
// that has not expired.
func (p *AssetPipeline) RequestPolicy(ctx context.Context, actx domain.AssetContext) (domain.UploadPolicy, error) {
	key := actx.PolicyPath()
	if policy, ok := p.policies.get(key); ok {
		return policy, nil
	}
	resp, err := p.host.Call(ctx, http.MethodGet, key, nil)
	if err != nil {
		return domain.UploadPolicy{}, err
	}
	policy := domain.NewUploadPolicy(resp.Body)
	p.policies.add(key, policy)
	return policy, nil
}

// Transfer stores every variant of blob. Any failure is a PartialUploadFailure.
func (p *AssetPipeline) Transfer(ctx context.Context, actx domain.AssetContext, blob domain.Blob, policy domain.UploadPolicy) ([]domain.UploadedVariant, error) {
	uploaded, err := p.transferer.Transfer(ctx, blob, policy, actx.Variants)
	if err != nil {
		var merr *domain.MutationError
		if errors.As(err, &merr) {
			return nil, merr
		}
		return nil, domain.PartialUpload(actx.Entity, err)
	}
	if len(uploaded) != len(actx.Variants) {
		return nil, domain.PartialUpload(actx.Entity, errors.New("transfer reported fewer variants than requested"))
	}
	return uploaded, nil
}

// Derive computes the dominant colour of blob.
func (p *AssetPipeline) Derive(actx domain.AssetContext, blob domain.Blob) (string, error) {
	color, err := p.derive(blob)
	if err != nil {
		return "", domain.UnreadableAsset(actx.Entity, err)
	}
	return color, nil
}

// Prepare runs the three steps and returns the attribute patch without
// submitting it.
func (p *AssetPipeline) Prepare(ctx context.Context, blob domain.Blob, actx domain.AssetContext) (FieldUpdate, error) {
	policy, err := p.RequestPolicy(ctx, actx)
	if err != nil {
		return nil, err
	}
	uploaded, err := p.Transfer(ctx, actx, blob, policy)
	if err != nil {
		p.policies.Invalidate(actx)
		p.fail(ctx, err)
		return nil, err
	}
	if policy.SingleUse() {
		p.policies.Invalidate(actx)
	}
	color, err := p.Derive(actx, blob)
	if err != nil {
		p.fail(ctx, err)
		return nil, err
	}
	return fieldUpdate(actx, color, uploaded), nil
}

// Upload prepares the patch and submits it as a patchFields mutation. The
// patch is sent even when the derived fields match the stored ones.
func (p *AssetPipeline) Upload(ctx context.Context, blob domain.Blob, actx domain.AssetContext) (FieldUpdate, error) {
	update, err := p.Prepare(ctx, blob, actx)
	if err != nil {
		return nil, err
	}
	if _, err := p.host.Mutate(ctx, domain.PatchFields(actx.Entity, update).Forced()); err != nil {
		return nil, err
	}
	p.logger.Info("asset uploaded", "entity", actx.Entity.String(), "purpose", string(actx.Purpose))
	return update, nil
}

func (p *AssetPipeline) fail(ctx context.Context, err error) {
	p.logger.Warn("asset upload aborted", "error", err)
	if ctx.Err() != nil {
		return
	}
	var merr *domain.MutationError
	if errors.As(err, &merr) {
		p.host.Notify(merr.UserMessage(), domain.NotifyError)
		return
	}
	p.host.Notify(err.Error(), domain.NotifyError)
}

func fieldUpdate(actx domain.AssetContext, color string, uploaded []domain.UploadedVariant) FieldUpdate {
	switch {
	case actx.Purpose == domain.PurposeCover:
		return FieldUpdate{"hasCoverImage": true, "coverColor": color}
	case actx.Entity.Kind == domain.KindTeam:
		return FieldUpdate{"hasAvatarImage": true, "backgroundColor": color}
	case actx.Entity.Kind == domain.KindCollection:
		return FieldUpdate{"avatarUrl": firstURL(uploaded), "coverColor": color}
	default:
		return FieldUpdate{"avatarUrl": firstURL(uploaded), "color": color}
	}
}

func firstURL(uploaded []domain.UploadedVariant) string {
	if len(uploaded) == 0 {
		return ""
	}
	return uploaded[0].URL
}

// TeamAvatar scopes a team avatar upload.
func TeamAvatar(teamID string) domain.AssetContext {
	return domain.AssetContext{Entity: domain.Ref(domain.KindTeam, teamID), Purpose: domain.PurposeAvatar, Variants: domain.AvatarVariants}
}

// TeamCover scopes a team cover upload.
func TeamCover(teamID string) domain.AssetContext {
	return domain.AssetContext{Entity: domain.Ref(domain.KindTeam, teamID), Purpose: domain.PurposeCover, Variants: domain.CoverVariants}
}

// SingleAvatar scopes a user or collection avatar upload.
func SingleAvatar(ref EntityRef) domain.AssetContext {
	return domain.AssetContext{Entity: ref, Purpose: domain.PurposeAvatar, Variants: domain.OriginalVariants}
}

// AssetContextFor returns the upload scope for purpose on ref. Teams take an
// avatar and a cover; users and collections only a single avatar.
func AssetContextFor(ref EntityRef, purpose domain.AssetPurpose) (domain.AssetContext, bool) {
	switch {
	case ref.Kind == domain.KindTeam && purpose == domain.PurposeAvatar:
		return TeamAvatar(ref.ID), true
	case ref.Kind == domain.KindTeam && purpose == domain.PurposeCover:
		return TeamCover(ref.ID), true
	case (ref.Kind == domain.KindUser || ref.Kind == domain.KindCollection) && purpose == domain.PurposeAvatar:
		return SingleAvatar(ref), true
	}
	return domain.AssetContext{}, false
}
