package core

import "entitysync/pkg/domain"

// NewDefaultRulesEngine builds the backend rules engine with the built-in
// policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewTeamAdminRule())
	engine.Register(NewUniqueURLRule())
	return engine
}
