package core

import (
	"classroom/pkg/domain"
	"context"
	"fmt"
)

// NewExamScheduleRule returns a warning rule flagging exams created or moved
// to a time before the commit that wrote them.
func NewExamScheduleRule() domain.Rule {
	return examScheduleRule{}
}

type examScheduleRule struct{}

func (examScheduleRule) Name() string { return "exam_schedule" }

func (examScheduleRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityExam || change.Action == domain.ActionDelete {
			continue
		}
		exam, ok := change.After.(domain.Exam)
		if !ok || exam.ScheduledAt.IsZero() {
			continue
		}
		// The write stamp is the commit time of this transaction.
		if exam.ScheduledAt.Before(exam.Revision()) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "exam_schedule",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("exam %s (%s) scheduled in the past: %s", exam.Title, exam.ID, exam.ScheduledAt.Format("2006-01-02 15:04")),
				Entity:   domain.EntityExam,
				EntityID: exam.ID,
			})
		}
	}
	return res, nil
}
