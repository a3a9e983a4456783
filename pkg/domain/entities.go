// Package domain defines the persistent records, value types, and rule
// evaluation primitives shared by the classroom repositories and stores.
package domain

import "time"

// EntityType identifies the type of record stored in the persistence context.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityStudent identifies a student record.
	EntityStudent EntityType = "student"
	// EntityClass identifies a class record.
	EntityClass EntityType = "class"
	// EntityExam identifies an exam record.
	EntityExam EntityType = "exam"
)

// DefaultClassCapacity applies to classes created without an explicit capacity.
const DefaultClassCapacity = 30

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Record is a persisted value with a store-assigned identity. Records are
// values; stores hand out clones so callers never alias committed state.
type Record interface {
	Identity() string
	Created() time.Time
	Revision() time.Time
	Entity() EntityType
	// WithBase returns a copy carrying the supplied identity and timestamps.
	WithBase(Base) Record
	Clone() Record
}

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity returns the store-assigned identifier, empty until first commit.
func (b Base) Identity() string { return b.ID }

// Created returns the stamp of the first commit.
func (b Base) Created() time.Time { return b.CreatedAt }

// Revision returns the commit stamp of the last write.
func (b Base) Revision() time.Time { return b.UpdatedAt }

// Student is a learner enrolled in zero or more classes.
type Student struct {
	Base
	Name  string `json:"name"`
	Email string `json:"email"`
	Grade int    `json:"grade"`
	// ClassIDs is derived from Class.StudentIDs and ignored on write.
	ClassIDs []string `json:"class_ids"`
}

// Entity implements Record.
func (Student) Entity() EntityType { return EntityStudent }

// WithBase implements Record.
func (s Student) WithBase(b Base) Record {
	s.Base = b
	return s
}

// Clone implements Record.
func (s Student) Clone() Record {
	s.ClassIDs = append([]string(nil), s.ClassIDs...)
	return s
}

// Class groups students under a subject. It owns the enrollment relationship.
type Class struct {
	Base
	Name       string   `json:"name"`
	Subject    string   `json:"subject"`
	Teacher    string   `json:"teacher"`
	Room       string   `json:"room"`
	Capacity   int      `json:"capacity"`
	StudentIDs []string `json:"student_ids"`
}

// Entity implements Record.
func (Class) Entity() EntityType { return EntityClass }

// WithBase implements Record.
func (c Class) WithBase(b Base) Record {
	c.Base = b
	return c
}

// Clone implements Record.
func (c Class) Clone() Record {
	c.StudentIDs = append([]string(nil), c.StudentIDs...)
	return c
}

// EffectiveCapacity resolves the zero value to DefaultClassCapacity.
func (c Class) EffectiveCapacity() int {
	if c.Capacity <= 0 {
		return DefaultClassCapacity
	}
	return c.Capacity
}

// Enrolled reports whether the student is part of the class roster.
func (c Class) Enrolled(studentID string) bool {
	for _, id := range c.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// Exam is an assessment scheduled for a class.
type Exam struct {
	Base
	Title       string    `json:"title"`
	Subject     string    `json:"subject"`
	ClassID     string    `json:"class_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	MaxScore    int       `json:"max_score"`
}

// Entity implements Record.
func (Exam) Entity() EntityType { return EntityExam }

// WithBase implements Record.
func (e Exam) WithBase(b Base) Record {
	e.Base = b
	return e
}

// Clone implements Record.
func (e Exam) Clone() Record { return e }

// Change describes a mutation applied to a record during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	ID     string
	Before Record
	After  Record
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations.
const (
	// ActionCreate indicates a record was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates a record was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates rule violations and the changes committed by a transaction.
type Result struct {
	Violations []Violation
	Changes    []Change
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
