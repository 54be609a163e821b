package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"entitysync/pkg/domain"
)

// ResizeFunc scales blob to width pixels. A zero width keeps the original.
type ResizeFunc func(blob domain.Blob, width int) (domain.Blob, error)

// Transferer writes asset variants directly into a Store. It implements
// domain.AssetTransferer for in-process deployments and for the reference
// server's upload endpoint.
type Transferer struct {
	store        Store
	resize       ResizeFunc
	cacheControl string
	now          func() time.Time
}

// TransfererOption configures a Transferer.
type TransfererOption func(*Transferer)

// WithResize sets the function deriving sized variants. Without it every
// variant stores the original bytes.
func WithResize(fn ResizeFunc) TransfererOption {
	return func(t *Transferer) { t.resize = fn }
}

// WithCacheControl sets the Cache-Control stored with each variant.
func WithCacheControl(v string) TransfererOption {
	return func(t *Transferer) { t.cacheControl = v }
}

// WithTransferClock overrides the clock used for object ids.
func WithTransferClock(now func() time.Time) TransfererOption {
	return func(t *Transferer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTransferer binds a Transferer to store.
func NewTransferer(store Store, opts ...TransfererOption) *Transferer {
	t := &Transferer{store: store, cacheControl: "public, max-age=31536000, immutable", now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transfer stores every variant under <prefix>/<object id>/<variant>. The
// variants upload in parallel; if any fails, the ones already written are
// deleted and the first error is returned.
func (t *Transferer) Transfer(ctx context.Context, b domain.Blob, p domain.UploadPolicy, variants []domain.Variant) ([]domain.UploadedVariant, error) {
	policy, err := DecodePolicy(p)
	if err != nil {
		return nil, err
	}
	if policy.Prefix == "" {
		return nil, errors.New("upload policy has no prefix")
	}
	if !policy.ExpiresAt.IsZero() && t.now().After(policy.ExpiresAt) {
		return nil, fmt.Errorf("upload policy expired at %s", policy.ExpiresAt.Format(time.RFC3339))
	}
	objectID := NewObjectID(t.now())
	out := make([]domain.UploadedVariant, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		g.Go(func() error {
			data := b
			if t.resize != nil && v.Width > 0 {
				resized, err := t.resize(b, v.Width)
				if err != nil {
					return fmt.Errorf("resize %s: %w", v.Name, err)
				}
				data = resized
			}
			key := path.Join(policy.Prefix, objectID, v.Name)
			info, err := t.store.Put(gctx, key, bytes.NewReader(data.Data), PutOptions{
				ContentType:  data.ContentType,
				CacheControl: t.cacheControl,
				Metadata:     map[string]string{"variant": v.Name},
			})
			if err != nil {
				return fmt.Errorf("store %s: %w", key, err)
			}
			url := info.URL
			if url == "" {
				url = objectURL(gctx, t.store, key)
			}
			out[i] = domain.UploadedVariant{Variant: v, Key: key, URL: url}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.cleanup(context.WithoutCancel(ctx), out)
		return nil, err
	}
	return out, nil
}

func (t *Transferer) cleanup(ctx context.Context, uploaded []domain.UploadedVariant) {
	for _, u := range uploaded {
		if u.Key == "" {
			continue
		}
		_, _ = t.store.Delete(ctx, u.Key)
	}
}

var _ domain.AssetTransferer = (*Transferer)(nil)
