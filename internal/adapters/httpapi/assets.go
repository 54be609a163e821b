package httpapi

import (
	"net/http"

	"entitysync/internal/blob"
	"entitysync/internal/core"
	"entitysync/pkg/domain"
)

func (h *Handler) handlePolicy(w http.ResponseWriter, r *http.Request, ref domain.EntityRef, purpose domain.AssetPurpose) {
	actx, ok := core.AssetContextFor(ref, purpose)
	if !ok {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if h.Blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}
	if _, ok := h.Store.Get(ref); !ok {
		writeError(w, http.StatusNotFound, domain.ErrEntityNotFound{Ref: ref}.Error())
		return
	}
	expiry := h.PolicyExpiry
	if expiry <= 0 {
		expiry = DefaultPolicyExpiry
	}
	policy, err := blob.IssuePolicy(r.Context(), h.Blobs, actx, expiry, h.now())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}
