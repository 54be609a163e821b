package core

import (
	"context"
	"fmt"
	"strings"

	"entitysync/pkg/domain"
)

// NewTeamAdminRule returns the in-transaction rule keeping at least one admin
// on every changed team that still has members.
func NewTeamAdminRule() domain.Rule {
	return teamAdminRule{}
}

type teamAdminRule struct{}

func (teamAdminRule) Name() string { return "team_admin" }

func (r teamAdminRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity.Kind != domain.KindTeam || change.Action == domain.ActionDelete {
			continue
		}
		team, ok := view.Find(change.Entity)
		if !ok {
			continue
		}
		if len(team.Relation(domain.RelationUsers).Items) == 0 {
			continue
		}
		if len(team.Relation(domain.RelationAdminIDs).Items) == 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  LastAdminMessage,
				Entity:   domain.KindTeam,
				EntityID: team.ID,
			})
		}
	}
	return res, nil
}

// NewUniqueURLRule returns the rule rejecting teams that share a url, and
// collections of one owner that share a url.
func NewUniqueURLRule() domain.Rule {
	return uniqueURLRule{}
}

type uniqueURLRule struct{}

func (uniqueURLRule) Name() string { return "unique_url" }

func (r uniqueURLRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Action == domain.ActionDelete || change.After == nil {
			continue
		}
		if change.Entity.Kind != domain.KindTeam && change.Entity.Kind != domain.KindCollection {
			continue
		}
		url, _ := change.After.Attr("url").(string)
		if url == "" {
			continue
		}
		owner := ownerKey(*change.After)
		for _, other := range view.List(change.Entity.Kind) {
			if other.ID == change.Entity.ID || ownerKey(other) != owner {
				continue
			}
			if otherURL, _ := other.Attr("url").(string); strings.EqualFold(otherURL, url) {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("A %s with the url %q already exists", change.Entity.Kind, url),
					Entity:   change.Entity.Kind,
					EntityID: change.Entity.ID,
				})
				break
			}
		}
	}
	return res, nil
}

func ownerKey(entity domain.Entity) string {
	if entity.Kind != domain.KindCollection {
		return ""
	}
	owner, _ := domain.IdentifierFrom(entity.Attr("userId"))
	return owner
}
