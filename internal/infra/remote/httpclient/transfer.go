package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"entitysync/internal/blob"
	"entitysync/pkg/domain"
)

// PresignedTransferer uploads each variant with a PUT to the URL the upload
// policy lists for it. It is the client-side counterpart of policies issued
// over an S3 store.
type PresignedTransferer struct {
	http   *http.Client
	resize blob.ResizeFunc
}

// NewPresignedTransferer constructs a transferer. A nil client selects
// NewHTTPClient defaults; a nil resize uploads the original to every variant.
func NewPresignedTransferer(c *http.Client, resize blob.ResizeFunc) *PresignedTransferer {
	if c == nil {
		c = NewHTTPClient(0)
	}
	return &PresignedTransferer{http: c, resize: resize}
}

// Transfer uploads all variants in parallel. A variant missing from the
// policy fails the whole transfer before anything is sent.
func (t *PresignedTransferer) Transfer(ctx context.Context, b domain.Blob, p domain.UploadPolicy, variants []domain.Variant) ([]domain.UploadedVariant, error) {
	policy, err := blob.DecodePolicy(p)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		if policy.Uploads[v.Name] == "" {
			return nil, fmt.Errorf("upload policy has no target for variant %q", v.Name)
		}
	}
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
			target := policy.Uploads[v.Name]
			if err := t.put(gctx, target, data); err != nil {
				return fmt.Errorf("upload %s: %w", v.Name, err)
			}
			out[i] = domain.UploadedVariant{Variant: v, Key: objectKey(target), URL: publicURL(policy, v.Name, target)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *PresignedTransferer) put(ctx context.Context, target string, b domain.Blob) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(b.Data))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(b.Data))
	if b.ContentType != "" {
		req.Header.Set("Content-Type", b.ContentType)
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.RemoteError{Status: resp.StatusCode, Body: raw}
	}
	return nil
}

func publicURL(policy blob.Policy, variant, target string) string {
	if u := policy.URLs[variant]; u != "" {
		return u
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	u.RawQuery = ""
	return u.String()
}

func objectKey(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return u.Path
}

var _ domain.AssetTransferer = (*PresignedTransferer)(nil)
