package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func propose(group, teacher, subject, day string, block int) ProposeAssignmentRequest {
	return ProposeAssignmentRequest{GroupID: group, TeacherID: teacher, SubjectID: subject, Day: day, BlockID: block}
}

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

func TestProposeGroupSlotTaken(t *testing.T) {
	e := newEngine(newTestGrid(t))
	ctx := context.Background()

	first, err := e.assignments.Propose(ctx, propose("G1", "T1", "S1", "MON", 1))
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = e.assignments.Propose(ctx, propose("G1", "T2", "S2", "MON", 1))
	assert.Equal(t, models.ConflictGroupSlotTaken, conflictKind(t, err))

	var conflict *models.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, first.ID, conflict.ExistingAssignmentID)
	assert.Len(t, e.store.assignments, 1)
}

func TestProposeTeacherSlotTaken(t *testing.T) {
	e := newEngine(newTestGrid(t))
	ctx := context.Background()

	_, err := e.assignments.Propose(ctx, propose("G1", "T1", "S1", "MON", 1))
	require.NoError(t, err)

	_, err = e.assignments.Propose(ctx, propose("G2", "T1", "S2", "MON", 1))
	assert.Equal(t, models.ConflictTeacherSlotTaken, conflictKind(t, err))
	assert.True(t, errors.Is(err, appErrors.ErrTeacherSlotTaken))
}

func TestProposeTeacherUnavailable(t *testing.T) {
	e := newEngine(newTestGrid(t))
	ctx := context.Background()

	require.NoError(t, e.availability.SetAvailability(ctx, "T1", models.DayMonday, 1, false))

	_, err := e.assignments.Propose(ctx, propose("G1", "T1", "S1", "MON", 1))
	assert.Equal(t, models.ConflictTeacherUnavailable, conflictKind(t, err))
	assert.Empty(t, e.store.assignments)

	require.NoError(t, e.availability.SetAvailability(ctx, "T1", models.DayMonday, 1, true))
	_, err = e.assignments.Propose(ctx, propose("G1", "T1", "S1", "MON", 1))
	assert.NoError(t, err)
}

func TestProposeUnavailableIffDeclaredFalse(t *testing.T) {
	grid := newTestGrid(t)
	for _, day := range grid.Days() {
		for _, block := range grid.Blocks() {
			for _, declared := range []*bool{nil, boolPtr(true), boolPtr(false)} {
				e := newEngine(grid)
				ctx := context.Background()
				if declared != nil {
					require.NoError(t, e.availability.SetAvailability(ctx, "T1", day, block.ID, *declared))
				}
				available, err := e.availability.IsAvailable(ctx, "T1", day, block.ID)
				require.NoError(t, err)

				_, err = e.assignments.Propose(ctx, propose("G1", "T1", "S1", string(day), block.ID))
				if available {
					assert.NoError(t, err)
				} else {
					assert.True(t, errors.Is(err, appErrors.ErrTeacherUnavailable))
				}
			}
		}
	}
}

func boolPtr(v bool) *bool { return &v }

func TestProposeValidation(t *testing.T) {
	e := newEngine(newTestGrid(t))
	ctx := context.Background()

	cases := map[string]ProposeAssignmentRequest{
		"missing group": propose("", "T1", "S1", "MON", 1),
		"unknown day":   propose("G1", "T1", "S1", "SUNDAY", 1),
		"unknown block": propose("G1", "T1", "S1", "MON", 42),
		"zero block":    propose("G1", "T1", "S1", "MON", 0),
	}
	for name, req := range cases {
		_, err := e.assignments.Propose(ctx, req)
		assert.True(t, errors.Is(err, appErrors.ErrValidation), name)
	}
	assert.Empty(t, e.store.assignments)
}

func TestProposeAcceptsLongDayNames(t *testing.T) {
	e := newEngine(newTestGrid(t))

	a, err := e.assignments.Propose(context.Background(), propose("G1", "T1", "S1", "wednesday", 2))
	require.NoError(t, err)
	assert.Equal(t, models.DayWednesday, a.Day)
}

func TestProposeUnknownEntity(t *testing.T) {
	e := newEngine(newTestGrid(t))

	_, err := e.assignments.Propose(context.Background(), propose("G1", "T404", "S1", "MON", 1))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Contains(t, err.Error(), "teacher T404")
}

func TestProposeStorageFailureIsPersistenceError(t *testing.T) {
	e := newEngine(newTestGrid(t))
	e.store.failures["Create"] = errInjected

	_, err := e.assignments.Propose(context.Background(), propose("G1", "T1", "S1", "MON", 1))
	assert.True(t, errors.Is(err, appErrors.ErrPersistence))
	assert.ErrorIs(t, err, errInjected)
}

func TestProposeMapsUniqueViolation(t *testing.T) {
	grid := newTestGrid(t)
	store := newMemStore()
	repo := &racingRepo{memAssignments: memAssignments{store}, violation: repository.ConstraintTeacherSlot}
	svc := NewAssignmentService(grid, repo, memAvailability{store}, memEntities{store}, &memTx{store: store}, nil, nil, nil, nil)

	_, err := svc.Propose(context.Background(), propose("G1", "T1", "S1", "MON", 1))
	assert.True(t, errors.Is(err, appErrors.ErrTeacherSlotTaken))
	assert.Equal(t, models.ConflictTeacherSlotTaken, conflictKind(t, err))
}

// racingRepo behaves as if another writer committed between check and insert.
type racingRepo struct {
	memAssignments
	violation string
}

func (r *racingRepo) Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.Assignment) error {
	return fmt.Errorf("create assignment: %w", &pq.Error{Code: "23505", Constraint: r.violation})
}

func TestAdvisoryLockTakenFirst(t *testing.T) {
	grid := newTestGrid(t)
	store := newMemStore()
	var calls []int64
	lock := NewBookLock(99, func(ctx context.Context, exec sqlx.ExtContext, key int64) error {
		calls = append(calls, key)
		return nil
	})
	svc := NewAssignmentService(grid, memAssignments{store}, memAvailability{store}, memEntities{store}, &memTx{store: store}, lock, nil, nil, nil)

	_, err := svc.Propose(context.Background(), propose("G1", "T1", "S1", "MON", 1))
	require.NoError(t, err)
	assert.Equal(t, []int64{99}, calls)

	failing := NewBookLock(99, func(ctx context.Context, exec sqlx.ExtContext, key int64) error { return errInjected })
	svc = NewAssignmentService(grid, memAssignments{store}, memAvailability{store}, memEntities{store}, &memTx{store: store}, failing, nil, nil, nil)
	_, err = svc.Propose(context.Background(), propose("G2", "T2", "S1", "MON", 1))
	assert.True(t, errors.Is(err, appErrors.ErrPersistence))
	assert.Len(t, store.assignments, 1)
}

func TestUpdateSameCoordinateSucceeds(t *testing.T) {
	e := newEngine(newTestGrid(t))
	ctx := context.Background()

	a, err := e.assignments.Propose(ctx, propose("G1", "T1", "S1", "MON", 1))
	require.NoError(t, err)

	updated, err := e.assignments.Update(ctx, a.ID, UpdateAssignmentRequest{Day: strPtr("MON"), BlockID: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, a.ID, updated.ID)

	updated, err = e.assignments.Update(ctx, a.ID, UpdateAssignmentRequest{SubjectID: strPtr("S2")})
	require.NoError(t, err)
	assert.Equal(t, "S2", updated.SubjectID)
	assert.Equal(t, "S2", e.store.assignments[a.ID].SubjectID)
}

func TestUpdateRevalidates(t *testing.T) {
	e := newEngine(newTestGrid(t))
	ctx := context.Background()

	_, err := e.assignments.Propose(ctx, propose("G1", "T1", "S1", "MON", 1))
	require.NoError(t, err)
	b, err := e.assignments.Propose(ctx, propose("G1", "T2", "S2", "MON", 2))
	require.NoError(t, err)

	_, err = e.assignments.Update(ctx, b.ID, UpdateAssignmentRequest{BlockID: intPtr(1)})
	assert.Equal(t, models.ConflictGroupSlotTaken, conflictKind(t, err))

	require.NoError(t, e.availability.SetAvailability(ctx, "T3", models.DayMonday, 2, false))
	_, err = e.assignments.Update(ctx, b.ID, UpdateAssignmentRequest{TeacherID: strPtr("T3")})
	assert.Equal(t, models.ConflictTeacherUnavailable, conflictKind(t, err))

	_, err = e.assignments.Update(ctx, b.ID, UpdateAssignmentRequest{Day: strPtr("SAT")})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = e.assignments.Update(ctx, b.ID, UpdateAssignmentRequest{SubjectID: strPtr("S404")})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	stored := e.store.assignments[b.ID]
	assert.Equal(t, "T2", stored.TeacherID)
	assert.Equal(t, 2, stored.BlockID)
}

func TestUpdateMissing(t *testing.T) {
	e := newEngine(newTestGrid(t))
	_, err := e.assignments.Update(context.Background(), "nope", UpdateAssignmentRequest{BlockID: intPtr(1)})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestRemove(t *testing.T) {
	e := newEngine(newTestGrid(t))
	ctx := context.Background()

	a, err := e.assignments.Propose(ctx, propose("G1", "T1", "S1", "MON", 1))
	require.NoError(t, err)

	require.NoError(t, e.assignments.Remove(ctx, a.ID))
	assert.True(t, errors.Is(e.assignments.Remove(ctx, a.ID), appErrors.ErrNotFound))

	_, err = e.assignments.Get(ctx, a.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = e.assignments.Propose(ctx, propose("G1", "T2", "S2", "MON", 1))
	assert.NoError(t, err)
}

func TestForGroupAndTeacherOrdering(t *testing.T) {
	e := newEngine(newTestGrid(t))
	ctx := context.Background()

	for _, req := range []ProposeAssignmentRequest{
		propose("G1", "T1", "S1", "TUE", 1),
		propose("G1", "T2", "S2", "MON", 3),
		propose("G1", "T1", "S3", "MON", 1),
		propose("G2", "T1", "S1", "MON", 2),
	} {
		_, err := e.assignments.Propose(ctx, req)
		require.NoError(t, err)
	}

	group, err := e.assignments.ForGroup(ctx, "G1")
	require.NoError(t, err)
	require.Len(t, group, 3)
	assert.Equal(t, []models.Slot{{Day: "MON", BlockID: 1}, {Day: "MON", BlockID: 3}, {Day: "TUE", BlockID: 1}},
		[]models.Slot{group[0].Slot(), group[1].Slot(), group[2].Slot()})

	teacher, err := e.assignments.ForTeacher(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, teacher, 3)
	assert.Equal(t, "G2", teacher[1].GroupID)

	empty, err := e.assignments.ForGroup(ctx, "G9")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestEntityInUse(t *testing.T) {
	e := newEngine(newTestGrid(t))
	ctx := context.Background()

	_, err := e.assignments.Propose(ctx, propose("G1", "T1", "S1", "MON", 1))
	require.NoError(t, err)

	inUse, err := e.assignments.IsEntityInUse(ctx, models.EntityTeacher, "T1")
	require.NoError(t, err)
	assert.True(t, inUse)

	inUse, err = e.assignments.IsEntityInUse(ctx, models.EntitySubject, "S2")
	require.NoError(t, err)
	assert.False(t, inUse)

	err = e.assignments.EnsureDeletable(ctx, models.EntityGroup, "G1")
	assert.True(t, errors.Is(err, appErrors.ErrEntityInUse))
	var inUseErr *models.EntityInUseError
	require.True(t, errors.As(err, &inUseErr))
	assert.Equal(t, 1, inUseErr.References)

	assert.NoError(t, e.assignments.EnsureDeletable(ctx, models.EntityGroup, "G2"))

	_, err = e.assignments.Usage(ctx, models.EntityKind("room"), "R1")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func assertBookUnique(t *testing.T, store *memStore) {
	t.Helper()
	groups := map[string]string{}
	teachers := map[string]string{}
	for id, a := range store.assignments {
		gk := fmt.Sprintf("%s/%s", a.GroupID, a.Slot())
		tk := fmt.Sprintf("%s/%s", a.TeacherID, a.Slot())
		if other, ok := groups[gk]; ok {
			t.Fatalf("group slot %s held by %s and %s", gk, other, id)
		}
		if other, ok := teachers[tk]; ok {
			t.Fatalf("teacher slot %s held by %s and %s", tk, other, id)
		}
		groups[gk] = id
		teachers[tk] = id
	}
}

func TestRandomMutationsKeepBookUnique(t *testing.T) {
	grid := newTestGrid(t)
	e := newEngine(grid)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	groups := []string{"G1", "G2", "G3"}
	teachers := []string{"T1", "T2", "T3"}
	days := []string{"MON", "TUE"}

	var ids []string
	for i := 0; i < 300; i++ {
		day := days[rng.Intn(len(days))]
		block := 1 + rng.Intn(3)
		if len(ids) > 0 && rng.Intn(3) == 0 {
			id := ids[rng.Intn(len(ids))]
			_, _ = e.assignments.Update(ctx, id, UpdateAssignmentRequest{
				TeacherID: strPtr(teachers[rng.Intn(len(teachers))]),
				Day:       strPtr(day),
				BlockID:   intPtr(block),
			})
		} else {
			a, err := e.assignments.Propose(ctx, propose(groups[rng.Intn(len(groups))], teachers[rng.Intn(len(teachers))], "S1", day, block))
			if err == nil {
				ids = append(ids, a.ID)
			}
		}
		assertBookUnique(t, e.store)
	}
	assert.NotEmpty(t, ids)
}

func TestConcurrentProposalsSameSlot(t *testing.T) {
	e := newEngine(newTestGrid(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 3)
	for _, group := range []string{"G1", "G2", "G3"} {
		wg.Add(1)
		go func(group string) {
			defer wg.Done()
			_, err := e.assignments.Propose(ctx, propose(group, "T1", "S1", "MON", 1))
			results <- err
		}(group)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, appErrors.ErrTeacherSlotTaken))
	}
	assert.Equal(t, 1, succeeded)
	assertBookUnique(t, e.store)
}
