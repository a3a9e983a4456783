package core

import "classroom/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewClassCapacityRule())
	engine.Register(NewExamScheduleRule())
	return engine
}
