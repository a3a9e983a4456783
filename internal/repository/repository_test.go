package repository

import (
	"classroom/internal/infra/persistence/memory"
	"classroom/pkg/domain"
	"context"
	"errors"
	"slices"
	"testing"
)

func TestCreateAssignsStableUniqueIdentities(t *testing.T) {
	repo := newStudentRepo(t, memory.NewStore(nil))
	ctx := context.Background()
	seen := make(map[string]struct{})
	for i := 0; i < 25; i++ {
		st := mustCreateStudent(t, repo, "student")
		if st.ID == "" {
			t.Fatalf("expected identity after create")
		}
		if _, dup := seen[st.ID]; dup {
			t.Fatalf("duplicate identity %s", st.ID)
		}
		seen[st.ID] = struct{}{}

		st.Name = "renamed"
		updated, err := repo.Update(ctx, st)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.ID != st.ID {
			t.Fatalf("identity changed on update: %s -> %s", st.ID, updated.ID)
		}
	}
}

func TestCreateIsIdempotentForTrackedRecord(t *testing.T) {
	repo := newStudentRepo(t, memory.NewStore(nil))
	first := mustCreateStudent(t, repo, "Ada")
	events := recordEvents(t, repo.Bus())

	changed := first
	changed.Name = "Ada Byron"
	again, err := repo.Create(context.Background(), changed)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if again.ID != first.ID || again.Name != "Ada" {
		t.Fatalf("expected the stored record unchanged, got %+v", again)
	}
	if n, _ := repo.Count(context.Background(), nil); n != 1 {
		t.Fatalf("expected single record after double insert, got %d", n)
	}
	if kinds := events.kinds(); len(kinds) != 0 {
		t.Fatalf("expected no event for a tracked record, got %v", kinds)
	}
}

func TestCreateNeverReusesIdentities(t *testing.T) {
	repo := newStudentRepo(t, memory.NewStore(nil))
	ctx := context.Background()

	chosen, err := repo.Create(ctx, domain.Student{Base: domain.Base{ID: "chosen-by-caller"}, Name: "Ada"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if chosen.ID == "chosen-by-caller" || chosen.ID == "" {
		t.Fatalf("expected a store-assigned identity, got %q", chosen.ID)
	}
	if err := repo.Delete(ctx, chosen); err != nil {
		t.Fatalf("delete: %v", err)
	}
	again, err := repo.Create(ctx, chosen)
	if err != nil {
		t.Fatalf("re-create: %v", err)
	}
	if again.ID == chosen.ID {
		t.Fatalf("deleted identity %s was reissued", chosen.ID)
	}
}

func TestCRUDEventCorrespondence(t *testing.T) {
	store := newFlaky()
	repo := newStudentRepo(t, store)
	events := recordEvents(t, repo.Bus())
	ctx := context.Background()

	st := mustCreateStudent(t, repo, "Ada")
	st.Grade = 10
	if _, err := repo.Update(ctx, st); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.Delete(ctx, st); err != nil {
		t.Fatalf("delete: %v", err)
	}
	want := []EventKind{KindCreated, KindUpdated, KindDeleted}
	if got := events.kinds(); !slices.Equal(got, want) {
		t.Fatalf("expected %v got %v", want, got)
	}

	events.reset()
	if err := repo.Delete(ctx, st); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := repo.Update(ctx, st); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update of deleted record, got %v", err)
	}
	store.setTxErr(errors.New("disk full"))
	created, err := repo.Create(ctx, domain.Student{Name: "Lost"})
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) || perr.Op != "create" {
		t.Fatalf("expected create PersistenceError, got %v", err)
	}
	if created.ID != "" {
		t.Fatalf("failed create must not expose an identity")
	}
	if got := events.kinds(); len(got) != 0 {
		t.Fatalf("failed mutations must not publish, got %v", got)
	}
}

func TestDeleteAllPublishesSingleBatchChange(t *testing.T) {
	repo := newStudentRepo(t, memory.NewStore(nil))
	for _, name := range []string{"a", "b", "c", "d"} {
		mustCreateStudent(t, repo, name)
	}
	events := recordEvents(t, repo.Bus())
	n, err := repo.DeleteAll(context.Background())
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 deletions, got %d", n)
	}
	if got := events.kinds(); !slices.Equal(got, []EventKind{KindBatch}) {
		t.Fatalf("expected one batch change, got %v", got)
	}
	if c, _ := repo.Count(context.Background(), nil); c != 0 {
		t.Fatalf("expected empty repository, got %d", c)
	}
}

func TestFetchAllAndCount(t *testing.T) {
	repo := newStudentRepo(t, memory.NewStore(nil))
	ctx := context.Background()
	for i, name := range []string{"Cleo", "ada", "Bo"} {
		if _, err := repo.Create(ctx, domain.Student{Name: name, Grade: 9 + i%2}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	all, err := repo.FetchAll(ctx, nil, nil)
	if err != nil || len(all) != 3 || all[0].Name != "Cleo" {
		t.Fatalf("expected creation order, got %+v (%v)", all, err)
	}
	sorted, _ := repo.FetchAll(ctx, nil, StudentsByName)
	if sorted[0].Name != "ada" || sorted[2].Name != "Cleo" {
		t.Fatalf("expected name order, got %v", sorted)
	}
	n, err := repo.Count(ctx, func(st domain.Student) bool { return st.Grade == 9 })
	if err != nil || n != 2 {
		t.Fatalf("expected 2 ninth graders, got %d (%v)", n, err)
	}
	found, ok, err := repo.Find(ctx, all[1].ID)
	if err != nil || !ok || found.Name != "ada" {
		t.Fatalf("unexpected find %+v %v %v", found, ok, err)
	}
	if _, ok, _ := repo.Find(ctx, "missing"); ok {
		t.Fatalf("expected missing record")
	}
}

func TestClosedRepositoryRejectsCalls(t *testing.T) {
	repo := newStudentRepo(t, memory.NewStore(nil))
	st := mustCreateStudent(t, repo, "Ada")
	sub := repo.ObserveAll(context.Background())
	recv(t, sub)
	repo.Close()

	select {
	case _, ok := <-sub.Values():
		if ok {
			t.Fatalf("expected closed values channel")
		}
	default:
		t.Fatalf("repository close must dispose subscriptions before returning")
	}
	ctx := context.Background()
	if _, err := repo.Create(ctx, domain.Student{Name: "late"}); !errors.Is(err, domain.ErrClosed) {
		t.Fatalf("expected ErrClosed from create, got %v", err)
	}
	if _, err := repo.FetchAll(ctx, nil, nil); !errors.Is(err, domain.ErrClosed) {
		t.Fatalf("expected ErrClosed from fetch, got %v", err)
	}
	if err := repo.Delete(ctx, st); !errors.Is(err, domain.ErrClosed) {
		t.Fatalf("expected ErrClosed from delete, got %v", err)
	}
	late := repo.ObserveAll(ctx)
	if _, ok := <-late.Values(); ok {
		t.Fatalf("observe on closed repository must yield a closed stream")
	}
	late.Close()
}

func TestNotifyRoutesForeignChanges(t *testing.T) {
	store := memory.NewStore(nil)
	students := newStudentRepo(t, store)
	classes := NewClasses(store, WithName(repoName(t)+"_classes"))
	t.Cleanup(classes.Close)

	var routed []domain.Change
	classesWithObserver := NewClasses(store, WithName(repoName(t)+"_observed"), WithChangeObserver(func(origin domain.EntityType, changes []domain.Change) {
		if origin != domain.EntityClass {
			t.Errorf("unexpected origin %s", origin)
		}
		routed = append(routed, changes...)
	}))
	t.Cleanup(classesWithObserver.Close)

	ada := mustCreateStudent(t, students, "Ada")
	class, err := classes.Create(context.Background(), domain.Class{Name: "Math"})
	if err != nil {
		t.Fatalf("create class: %v", err)
	}
	if _, err := classesWithObserver.Enroll(context.Background(), class.ID, ada.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	var foreign *domain.Change
	for i := range routed {
		if routed[i].Entity == domain.EntityStudent {
			foreign = &routed[i]
		}
	}
	if foreign == nil {
		t.Fatalf("expected student side effect in %+v", routed)
	}

	events := recordEvents(t, students.Bus())
	students.Notify(*foreign)
	students.Notify(domain.Change{Entity: domain.EntityStudent, Action: domain.ActionDelete, ID: ada.ID})
	students.Notify(domain.Change{Entity: domain.EntityClass, Action: domain.ActionUpdate})
	if got := events.kinds(); !slices.Equal(got, []EventKind{KindUpdated, KindBatch}) {
		t.Fatalf("unexpected routed events %v", got)
	}
}
