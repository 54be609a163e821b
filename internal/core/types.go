package core

import "entitysync/pkg/domain"

type (
	EntityKind     = domain.EntityKind
	EntityRef      = domain.EntityRef
	Entity         = domain.Entity
	EntitySnapshot = domain.EntitySnapshot
	RelationItem   = domain.RelationItem
	MutationIntent = domain.MutationIntent
	MutationKind   = domain.MutationKind
	Severity       = domain.Severity
	Violation      = domain.Violation
	Result         = domain.Result
	Change         = domain.Change
)

const (
	KindTeam       = domain.KindTeam
	KindUser       = domain.KindUser
	KindCollection = domain.KindCollection
	KindProject    = domain.KindProject
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)
