package repository

import (
	"classroom/pkg/domain"
	"context"
	"fmt"
	"strings"
)

// Classes is the class repository. It owns the enrollment relationship.
type Classes struct {
	*Repository[domain.Class]
}

// NewClasses constructs the class repository over store.
func NewClasses(store domain.PersistentStore, opts ...Option) *Classes {
	return &Classes{Repository: New[domain.Class](store, domain.EntityClass, opts...)}
}

// ClassesByName orders classes by name.
func ClassesByName(a, b domain.Class) int {
	return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
}

// BySubject returns classes teaching subject, ignoring case, sorted by name.
func (c *Classes) BySubject(ctx context.Context, subject string) ([]domain.Class, error) {
	return c.FetchAll(ctx, func(cl domain.Class) bool {
		return strings.EqualFold(cl.Subject, subject)
	}, ClassesByName)
}

// ForStudent returns the classes studentID is enrolled in, sorted by name.
func (c *Classes) ForStudent(ctx context.Context, studentID string) ([]domain.Class, error) {
	return c.FetchAll(ctx, func(cl domain.Class) bool { return cl.Enrolled(studentID) }, ClassesByName)
}

// Enroll adds studentID to the class roster. It fails with domain.ErrClassFull
// when the roster already holds the class capacity, in which case nothing is
// committed. Enrolling an already enrolled student is a no-op.
func (c *Classes) Enroll(ctx context.Context, classID, studentID string) (domain.Class, error) {
	return c.changeRoster(ctx, "enroll", classID, studentID, func(class domain.Class) (domain.Class, bool, error) {
		if class.Enrolled(studentID) {
			return class, false, nil
		}
		if len(class.StudentIDs) >= class.EffectiveCapacity() {
			return class, false, fmt.Errorf("%d/%d students: %w", len(class.StudentIDs), class.EffectiveCapacity(), domain.ErrClassFull)
		}
		class.StudentIDs = append(class.StudentIDs, studentID)
		return class, true, nil
	})
}

// Unenroll removes studentID from the class roster.
func (c *Classes) Unenroll(ctx context.Context, classID, studentID string) (domain.Class, error) {
	return c.changeRoster(ctx, "unenroll", classID, studentID, func(class domain.Class) (domain.Class, bool, error) {
		if !class.Enrolled(studentID) {
			return class, false, fmt.Errorf("student %s not enrolled: %w", studentID, domain.ErrNotFound)
		}
		roster := make([]string, 0, len(class.StudentIDs))
		for _, id := range class.StudentIDs {
			if id != studentID {
				roster = append(roster, id)
			}
		}
		class.StudentIDs = roster
		return class, true, nil
	})
}

func (c *Classes) changeRoster(ctx context.Context, op, classID, studentID string, mutate func(domain.Class) (domain.Class, bool, error)) (saved domain.Class, err error) {
	ctx, span := c.startSpan(ctx, op)
	defer func() { endSpan(span, err) }()

	var (
		out     domain.Class
		changed bool
	)
	res, err := c.run(ctx, op, classID, func(tx domain.Transaction) error {
		rec, ok := tx.Find(domain.EntityClass, classID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityClass, ID: classID}
		}
		if _, ok := tx.Find(domain.EntityStudent, studentID); !ok {
			return domain.NotFoundError{Entity: domain.EntityStudent, ID: studentID}
		}
		class, next, err := mutate(rec.(domain.Class))
		if err != nil {
			return err
		}
		out, changed = class, next
		if !changed {
			return nil
		}
		updated, err := tx.Update(class)
		if err != nil {
			return err
		}
		out = updated.(domain.Class)
		return nil
	})
	if err != nil {
		return domain.Class{}, err
	}
	if changed {
		c.publish(Updated(out))
		c.afterCommit(res)
	}
	return out, nil
}
