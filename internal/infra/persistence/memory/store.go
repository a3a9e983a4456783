// Package memory provides the in-memory implementation of the persistence
// context used directly in tests and ephemeral environments, and embedded by
// the snapshotting SQLite and Postgres stores.
package memory

import (
	"classroom/pkg/domain"
	"classroom/pkg/monotonic"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Student aliases domain.Student for in-memory persistence operations.
	Student = domain.Student
	// Class aliases domain.Class.
	Class = domain.Class
	// Exam aliases domain.Exam.
	Exam = domain.Exam
	// Record aliases domain.Record.
	Record = domain.Record
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	students map[string]Student
	classes  map[string]Class
	exams    map[string]Exam
}

// latestStamp returns the newest commit stamp held by the state. Loaded
// records may carry stamps ahead of the local clock.
func (m memoryState) latestStamp() time.Time {
	var latest time.Time
	bump := func(b domain.Base) {
		for _, ts := range []time.Time{b.CreatedAt, b.UpdatedAt} {
			if ts.After(latest) {
				latest = ts
			}
		}
	}
	for _, st := range m.students {
		bump(st.Base)
	}
	for _, c := range m.classes {
		bump(c.Base)
	}
	for _, e := range m.exams {
		bump(e.Base)
	}
	return latest
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Students map[string]Student `json:"students"`
	Classes  map[string]Class   `json:"classes"`
	Exams    map[string]Exam    `json:"exams"`
}

func newMemoryState() memoryState {
	return memoryState{
		students: make(map[string]Student),
		classes:  make(map[string]Class),
		exams:    make(map[string]Exam),
	}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		students: make(map[string]Student, len(s.students)),
		classes:  make(map[string]Class, len(s.classes)),
		exams:    make(map[string]Exam, len(s.exams)),
	}
	for k, v := range s.students {
		cloned.students[k] = cloneStudent(v)
	}
	for k, v := range s.classes {
		cloned.classes[k] = cloneClass(v)
	}
	for k, v := range s.exams {
		cloned.exams[k] = v
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{Students: cloned.students, Classes: cloned.classes, Exams: cloned.exams}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	return memoryState{students: s.Students, classes: s.Classes, exams: s.Exams}.clone()
}

// migrateSnapshot fills missing buckets and drops dangling references so an
// imported snapshot satisfies the relationship invariants.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Students == nil {
		snapshot.Students = map[string]Student{}
	}
	if snapshot.Classes == nil {
		snapshot.Classes = map[string]Class{}
	}
	if snapshot.Exams == nil {
		snapshot.Exams = map[string]Exam{}
	}
	for id, student := range snapshot.Students {
		if student.ClassIDs != nil {
			student.ClassIDs = nil
			snapshot.Students[id] = student
		}
	}
	for id, class := range snapshot.Classes {
		filtered, changed := filterIDs(class.StudentIDs, func(sid string) bool {
			_, ok := snapshot.Students[sid]
			return ok
		})
		if changed {
			class.StudentIDs = filtered
			snapshot.Classes[id] = class
		}
	}
	for id, exam := range snapshot.Exams {
		if _, ok := snapshot.Classes[exam.ClassID]; !ok {
			delete(snapshot.Exams, id)
		}
	}
	return snapshot
}

func cloneStudent(s Student) Student {
	cp := s
	cp.ClassIDs = append([]string(nil), s.ClassIDs...)
	return cp
}

func cloneClass(c Class) Class {
	cp := c
	cp.StudentIDs = append([]string(nil), c.StudentIDs...)
	return cp
}

func containsString(values []string, id string) bool {
	for _, existing := range values {
		if existing == id {
			return true
		}
	}
	return false
}

func removeString(values []string, id string) ([]string, bool) {
	out := values[:0:0]
	removed := false
	for _, v := range values {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	return out, removed
}

func dedupeStrings(values []string) []string {
	if len(values) <= 1 {
		return append([]string(nil), values...)
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func filterIDs(values []string, exists func(string) bool) ([]string, bool) {
	if len(values) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	changed := false
	for _, v := range values {
		if _, ok := seen[v]; ok {
			changed = true
			continue
		}
		seen[v] = struct{}{}
		if !exists(v) {
			changed = true
			continue
		}
		out = append(out, v)
	}
	if !changed && len(out) == len(values) {
		return values, false
	}
	return out, true
}

// enrollmentIndex maps student IDs to the sorted IDs of classes listing them.
func enrollmentIndex(state *memoryState) map[string][]string {
	index := make(map[string][]string)
	for _, class := range state.classes {
		for _, sid := range class.StudentIDs {
			index[sid] = append(index[sid], class.ID)
		}
	}
	for sid := range index {
		sort.Strings(index[sid])
	}
	return index
}

func decorateStudent(state *memoryState, student Student) Student {
	var ids []string
	for _, class := range state.classes {
		if containsString(class.StudentIDs, student.ID) {
			ids = append(ids, class.ID)
		}
	}
	sort.Strings(ids)
	student.ClassIDs = ids
	return student
}

// CommitHook runs with the prospective state before a transaction becomes
// visible. Returning an error aborts the commit.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithCommitHook installs a hook invoked before each commit is applied.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.commitHook = hook }
}

// WithClock overrides the revision clock.
func WithClock(clock *monotonic.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// Store provides an in-memory transactional store for the classroom domain.
type Store struct {
	mu         sync.RWMutex
	state      memoryState
	engine     *RulesEngine
	clock      *monotonic.Clock
	commitHook CommitHook
	closed     bool
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	clock, err := monotonic.NewClock(time.Microsecond)
	if err != nil {
		panic(err)
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		clock:  clock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCommitHook replaces the commit hook after construction. Stores embedding
// memory.Store install their persistence step this way.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHook = hook
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot without
// running the commit hook.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
	s.clock.Advance(s.state.latestStamp())
}

// Restore replaces the store state with the snapshot, running the commit hook
// so durable backends persist the restored state.
func (s *Store) Restore(ctx context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrClosed
	}
	next := memoryStateFromSnapshot(migrateSnapshot(snapshot))
	if s.commitHook != nil {
		if err := s.commitHook(ctx, snapshotFromMemoryState(next)); err != nil {
			return fmt.Errorf("persist restored state: %w", err)
		}
	}
	s.state = next
	s.clock.Advance(next.latestStamp())
	return nil
}

// RulesEngine exposes the currently configured engine for rule registration.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Close marks the store closed. Further reads and transactions fail with domain.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// Fetch returns the records matching q within the snapshot.
func (v transactionView) Fetch(q domain.Query) []Record {
	var all []Record
	switch q.Entity {
	case domain.EntityStudent:
		index := enrollmentIndex(v.state)
		all = make([]Record, 0, len(v.state.students))
		for _, st := range v.state.students {
			st = cloneStudent(st)
			st.ClassIDs = append([]string(nil), index[st.ID]...)
			all = append(all, st)
		}
	case domain.EntityClass:
		all = make([]Record, 0, len(v.state.classes))
		for _, c := range v.state.classes {
			all = append(all, cloneClass(c))
		}
	case domain.EntityExam:
		all = make([]Record, 0, len(v.state.exams))
		for _, e := range v.state.exams {
			all = append(all, e)
		}
	}
	return q.Apply(all)
}

// Find retrieves a record by entity and identity from the snapshot.
func (v transactionView) Find(entity domain.EntityType, id string) (Record, bool) {
	switch entity {
	case domain.EntityStudent:
		st, ok := v.state.students[id]
		if !ok {
			return nil, false
		}
		return decorateStudent(v.state, cloneStudent(st)), true
	case domain.EntityClass:
		c, ok := v.state.classes[id]
		if !ok {
			return nil, false
		}
		return cloneClass(c), true
	case domain.EntityExam:
		e, ok := v.state.exams[id]
		if !ok {
			return nil, false
		}
		return e, true
	}
	return nil, false
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Result{}, domain.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		store: s,
		state: s.state.clone(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.commitHook != nil {
		if err := s.commitHook(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return Result{}, fmt.Errorf("persist commit: %w", err)
		}
	}

	s.state = tx.state
	result.Changes = tx.changes
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrClosed
	}
	return fn(newTransactionView(&s.state))
}

// Fetch returns committed records matching the query.
func (s *Store) Fetch(ctx context.Context, q domain.Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Record
	err := s.View(ctx, func(view TransactionView) error {
		out = view.Fetch(q)
		return nil
	})
	return out, err
}

// Count returns the number of committed records matching the query.
func (s *Store) Count(ctx context.Context, q domain.Query) (int, error) {
	q.Limit = 0
	records, err := s.Fetch(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Find looks up a committed record by identity.
func (s *Store) Find(ctx context.Context, entity domain.EntityType, id string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var (
		rec Record
		ok  bool
	)
	err := s.View(ctx, func(view TransactionView) error {
		rec, ok = view.Find(entity, id)
		return nil
	})
	return rec, ok, err
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// touchStudents records derived-side updates for students whose class
// membership changed within this transaction. Their revision advances so
// observers see the derived ClassIDs change.
func (tx *transaction) touchStudents(ids []string) {
	for _, id := range dedupeStrings(ids) {
		st, ok := tx.state.students[id]
		if !ok {
			continue
		}
		st.UpdatedAt = tx.stamp()
		tx.state.students[id] = st
		after := decorateStudent(&tx.state, cloneStudent(st))
		tx.recordChange(Change{Entity: domain.EntityStudent, Action: domain.ActionUpdate, ID: id, After: after})
	}
}

func (tx *transaction) stamp() time.Time {
	return tx.store.clock.Now()
}

func (tx *transaction) Fetch(q domain.Query) []Record {
	return newTransactionView(&tx.state).Fetch(q)
}

func (tx *transaction) Find(entity domain.EntityType, id string) (Record, bool) {
	return newTransactionView(&tx.state).Find(entity, id)
}

// Tracks reports whether the record's identity is already held by the transaction state.
func (tx *transaction) Tracks(rec Record) bool {
	if rec == nil || rec.Identity() == "" {
		return false
	}
	_, ok := tx.Find(rec.Entity(), rec.Identity())
	return ok
}

// Insert stores a new record, assigning identity and commit stamps. Any
// identity carried by rec is replaced: identities are only handed out here.
func (tx *transaction) Insert(rec Record) (Record, error) {
	switch r := rec.(type) {
	case Student:
		return tx.insertStudent(r)
	case Class:
		return tx.insertClass(r)
	case Exam:
		return tx.insertExam(r)
	default:
		return nil, fmt.Errorf("unsupported record type %T", rec)
	}
}

// Update replaces the content of an existing record.
func (tx *transaction) Update(rec Record) (Record, error) {
	switch r := rec.(type) {
	case Student:
		return tx.updateStudent(r)
	case Class:
		return tx.updateClass(r)
	case Exam:
		return tx.updateExam(r)
	default:
		return nil, fmt.Errorf("unsupported record type %T", rec)
	}
}

// Delete removes a record and maintains the inverse side of its relationships.
func (tx *transaction) Delete(rec Record) error {
	if rec == nil {
		return fmt.Errorf("delete nil record")
	}
	switch rec.Entity() {
	case domain.EntityStudent:
		return tx.deleteStudent(rec.Identity())
	case domain.EntityClass:
		return tx.deleteClass(rec.Identity())
	case domain.EntityExam:
		return tx.deleteExam(rec.Identity())
	default:
		return fmt.Errorf("unsupported record type %T", rec)
	}
}

// newID mints a fresh identity. Deleted identities are never reissued.
func newID() string { return uuid.NewString() }

func (tx *transaction) insertStudent(s Student) (Record, error) {
	s.ID = newID()
	now := tx.stamp()
	s.CreatedAt = now
	s.UpdatedAt = now
	s.ClassIDs = nil
	tx.state.students[s.ID] = cloneStudent(s)
	created := decorateStudent(&tx.state, cloneStudent(s))
	tx.recordChange(Change{Entity: domain.EntityStudent, Action: domain.ActionCreate, ID: s.ID, After: created})
	return created, nil
}

func (tx *transaction) updateStudent(s Student) (Record, error) {
	current, ok := tx.state.students[s.ID]
	if !ok {
		return nil, domain.NotFoundError{Entity: domain.EntityStudent, ID: s.ID}
	}
	before := decorateStudent(&tx.state, cloneStudent(current))
	s.CreatedAt = current.CreatedAt
	s.UpdatedAt = tx.stamp()
	s.ClassIDs = nil
	tx.state.students[s.ID] = cloneStudent(s)
	after := decorateStudent(&tx.state, cloneStudent(s))
	tx.recordChange(Change{Entity: domain.EntityStudent, Action: domain.ActionUpdate, ID: s.ID, Before: before, After: after})
	return after, nil
}

func (tx *transaction) deleteStudent(id string) error {
	current, ok := tx.state.students[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityStudent, ID: id}
	}
	before := decorateStudent(&tx.state, cloneStudent(current))
	delete(tx.state.students, id)
	for classID, class := range tx.state.classes {
		pruned, removed := removeString(class.StudentIDs, id)
		if !removed {
			continue
		}
		prev := cloneClass(class)
		class.StudentIDs = pruned
		class.UpdatedAt = tx.stamp()
		tx.state.classes[classID] = class
		tx.recordChange(Change{Entity: domain.EntityClass, Action: domain.ActionUpdate, ID: classID, Before: prev, After: cloneClass(class)})
	}
	tx.recordChange(Change{Entity: domain.EntityStudent, Action: domain.ActionDelete, ID: id, Before: before})
	return nil
}

func (tx *transaction) validateRoster(classID string, roster []string) ([]string, error) {
	roster = dedupeStrings(roster)
	for _, sid := range roster {
		if _, ok := tx.state.students[sid]; !ok {
			return nil, fmt.Errorf("class %q roster: %w", classID, domain.NotFoundError{Entity: domain.EntityStudent, ID: sid})
		}
	}
	return roster, nil
}

func (tx *transaction) insertClass(c Class) (Record, error) {
	c.ID = newID()
	roster, err := tx.validateRoster(c.ID, c.StudentIDs)
	if err != nil {
		return nil, err
	}
	now := tx.stamp()
	c.StudentIDs = roster
	c.CreatedAt = now
	c.UpdatedAt = now
	tx.state.classes[c.ID] = cloneClass(c)
	tx.recordChange(Change{Entity: domain.EntityClass, Action: domain.ActionCreate, ID: c.ID, After: cloneClass(c)})
	tx.touchStudents(roster)
	return cloneClass(c), nil
}

func (tx *transaction) updateClass(c Class) (Record, error) {
	current, ok := tx.state.classes[c.ID]
	if !ok {
		return nil, domain.NotFoundError{Entity: domain.EntityClass, ID: c.ID}
	}
	roster, err := tx.validateRoster(c.ID, c.StudentIDs)
	if err != nil {
		return nil, err
	}
	before := cloneClass(current)
	c.StudentIDs = roster
	c.CreatedAt = current.CreatedAt
	c.UpdatedAt = tx.stamp()
	tx.state.classes[c.ID] = cloneClass(c)
	tx.recordChange(Change{Entity: domain.EntityClass, Action: domain.ActionUpdate, ID: c.ID, Before: before, After: cloneClass(c)})

	var touched []string
	for _, sid := range before.StudentIDs {
		if !containsString(roster, sid) {
			touched = append(touched, sid)
		}
	}
	for _, sid := range roster {
		if !containsString(before.StudentIDs, sid) {
			touched = append(touched, sid)
		}
	}
	tx.touchStudents(touched)
	return cloneClass(c), nil
}

func (tx *transaction) deleteClass(id string) error {
	current, ok := tx.state.classes[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityClass, ID: id}
	}
	for _, exam := range tx.state.exams {
		if exam.ClassID == id {
			return fmt.Errorf("class %q still referenced by exam %q: %w", id, exam.ID, domain.ErrConflict)
		}
	}
	delete(tx.state.classes, id)
	tx.recordChange(Change{Entity: domain.EntityClass, Action: domain.ActionDelete, ID: id, Before: cloneClass(current)})
	tx.touchStudents(current.StudentIDs)
	return nil
}

func (tx *transaction) requireClass(classID string) error {
	if classID == "" {
		return fmt.Errorf("exam requires a class: %w", domain.ErrConflict)
	}
	if _, ok := tx.state.classes[classID]; !ok {
		return domain.NotFoundError{Entity: domain.EntityClass, ID: classID}
	}
	return nil
}

func (tx *transaction) insertExam(e Exam) (Record, error) {
	e.ID = newID()
	if err := tx.requireClass(e.ClassID); err != nil {
		return nil, err
	}
	now := tx.stamp()
	e.CreatedAt = now
	e.UpdatedAt = now
	tx.state.exams[e.ID] = e
	tx.recordChange(Change{Entity: domain.EntityExam, Action: domain.ActionCreate, ID: e.ID, After: e})
	return e, nil
}

func (tx *transaction) updateExam(e Exam) (Record, error) {
	current, ok := tx.state.exams[e.ID]
	if !ok {
		return nil, domain.NotFoundError{Entity: domain.EntityExam, ID: e.ID}
	}
	if err := tx.requireClass(e.ClassID); err != nil {
		return nil, err
	}
	e.CreatedAt = current.CreatedAt
	e.UpdatedAt = tx.stamp()
	tx.state.exams[e.ID] = e
	tx.recordChange(Change{Entity: domain.EntityExam, Action: domain.ActionUpdate, ID: e.ID, Before: current, After: e})
	return e, nil
}

func (tx *transaction) deleteExam(id string) error {
	current, ok := tx.state.exams[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityExam, ID: id}
	}
	delete(tx.state.exams, id)
	tx.recordChange(Change{Entity: domain.EntityExam, Action: domain.ActionDelete, ID: id, Before: current})
	return nil
}
