package core

import (
	"classroom/pkg/domain"
	"context"
	"fmt"
)

// NewClassCapacityRule returns the in-transaction rule rejecting rosters larger
// than the class capacity.
func NewClassCapacityRule() domain.Rule {
	return classCapacityRule{}
}

type classCapacityRule struct{}

func (classCapacityRule) Name() string { return "class_capacity" }

func (classCapacityRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, rec := range view.Fetch(domain.All(domain.EntityClass)) {
		class, ok := rec.(domain.Class)
		if !ok {
			continue
		}
		enrolled, capacity := len(class.StudentIDs), class.EffectiveCapacity()
		if enrolled > capacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "class_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("class %s (%s) over capacity: %d/%d students", class.Name, class.ID, enrolled, capacity),
				Entity:   domain.EntityClass,
				EntityID: class.ID,
			})
		}
	}
	return res, nil
}
