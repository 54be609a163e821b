package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"unicode"

	"entitysync/pkg/domain"
)

// Session bundles the store, engine and loader serving one signed-in user.
type Session struct {
	store       *EntityStore
	engine      *MutationEngine
	loader      *Loader
	policies    *PolicyCache
	transferer  domain.AssetTransferer
	derive      domain.DeriveFunc
	currentUser string
}

// SessionConfig carries the collaborators of a Session.
type SessionConfig struct {
	Client        domain.RemoteClient
	CurrentUserID string
	Transferer    domain.AssetTransferer
	Derive        domain.DeriveFunc
	Policies      *PolicyCache
}

// NewSession wires a store, engine and loader around cfg.Client.
func NewSession(cfg SessionConfig, opts ...EngineOption) *Session {
	store := NewEntityStore()
	engine := NewMutationEngine(store, cfg.Client, opts...)
	policies := cfg.Policies
	if policies == nil {
		policies = NewPolicyCache(0, 0)
	}
	return &Session{
		store:       store,
		engine:      engine,
		loader:      NewLoader(store, cfg.Client, engine.Logger()),
		policies:    policies,
		transferer:  cfg.Transferer,
		derive:      cfg.Derive,
		currentUser: cfg.CurrentUserID,
	}
}

// Store returns the session entity store.
func (s *Session) Store() *EntityStore { return s.store }

// Engine returns the session mutation engine.
func (s *Session) Engine() *MutationEngine { return s.engine }

// Loader returns the session loader.
func (s *Session) Loader() *Loader { return s.loader }

// CurrentUser returns the ref of the signed-in user.
func (s *Session) CurrentUser() EntityRef {
	return domain.Ref(domain.KindUser, s.currentUser)
}

// OpenView opens a view routing notifications to notifier.
func (s *Session) OpenView(notifier domain.Notifier) *View {
	return s.engine.OpenView(notifier)
}

// Assets builds an asset pipeline submitting through view.
func (s *Session) Assets(view *View) *AssetPipeline {
	return NewAssetPipeline(view, s.transferer, s.derive, s.policies, s.engine.Logger())
}

// TeamURLAvailable reports whether no team uses url. Lookup failures are
// returned without notifying.
func (s *Session) TeamURLAvailable(ctx context.Context, url string) (bool, error) {
	resp, err := s.engine.remote(ctx, http.MethodGet, "teams/byUrl/"+url, nil)
	if err != nil {
		var remote *domain.RemoteError
		if errors.As(err, &remote) && remote.Status == http.StatusNotFound {
			return true, nil
		}
		return false, s.engine.classify(domain.EntityRef{}, err)
	}
	body := strings.TrimSpace(string(resp.Body))
	return body == "" || body == "null", nil
}

// CreateTeam creates a team named name with a url derived from it and
// stores the created entity.
func (s *Session) CreateTeam(ctx context.Context, view *View, name string) (Entity, error) {
	url := KebabCase(name)
	if url == "" {
		return Entity{}, &domain.MutationError{Kind: domain.ErrorInvariantViolation, Reason: "team name required"}
	}
	body := map[string]any{
		"name":            name,
		"url":             url,
		"hasAvatarImage":  false,
		"coverColor":      "",
		"location":        "",
		"description":     RandomTeamDescription(),
		"backgroundColor": "",
		"hasCoverImage":   false,
		"isVerified":      false,
	}
	return s.create(ctx, view, domain.KindTeam, body)
}

// CreateCollection creates a collection owned by the current user.
func (s *Session) CreateCollection(ctx context.Context, view *View, name string) (Entity, error) {
	url := KebabCase(name)
	if url == "" {
		return Entity{}, &domain.MutationError{Kind: domain.ErrorInvariantViolation, Reason: "collection name required"}
	}
	body := map[string]any{
		"name":        name,
		"description": "A collection of projects that does wondrous things",
		"url":         url,
		"avatarUrl":   DefaultCollectionAvatar,
		"coverColor":  RandomColor(),
		"userId":      domain.WireID(s.currentUser),
	}
	return s.create(ctx, view, domain.KindCollection, body)
}

func (s *Session) create(ctx context.Context, view *View, kind EntityKind, body map[string]any) (Entity, error) {
	resp, err := view.Call(ctx, http.MethodPost, kind.Plural(), body)
	if err != nil {
		return Entity{}, err
	}
	entity, err := domain.DecodeEntity(kind, resp.Body)
	if err != nil {
		return Entity{}, domain.NetworkFailure(domain.EntityRef{Kind: kind}, fmt.Errorf("create %s: %w", kind, err))
	}
	if err := s.store.Put(entity); err != nil {
		return Entity{}, err
	}
	return entity, nil
}

// DefaultCollectionAvatar is assigned to new collections.
const DefaultCollectionAvatar = "/assets/collection-avatar.svg"

// CollectionColors is the palette new collections draw their cover colour from.
var CollectionColors = []string{"#cfe3ff", "#fcdede", "#d4f2d9", "#fff2c6", "#e9d9ff", "#ffe0c2"}

var teamAdjectives = []string{"bold", "brave", "bright", "curious", "daring", "gentle", "lively", "merry", "quirky", "sparkling", "tiny", "wondrous"}

// RandomColor picks a palette colour.
func RandomColor() string {
	return CollectionColors[rand.IntN(len(CollectionColors))]
}

// RandomTeamDescription builds a default team description.
func RandomTeamDescription() string {
	perm := rand.Perm(len(teamAdjectives))
	return fmt.Sprintf("A %s team that makes %s things", teamAdjectives[perm[0]], teamAdjectives[perm[1]])
}

// KebabCase lowercases s and joins its words with hyphens.
func KebabCase(s string) string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && len(current) > 0 && i > 0 && unicode.IsLower(runes[i-1]) {
				flush()
			}
			current = append(current, unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()
	return strings.Join(words, "-")
}
