package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

var errInjected = errors.New("injected failure")

// memStore is an in-memory stand-in for the timetable tables. memTx restores it when fn fails.
type memStore struct {
	mu           sync.Mutex
	seq          int
	assignments  map[string]models.Assignment
	availability map[availabilityKey]models.Availability
	entities     map[models.EntityKind]map[string]bool
	versions     []models.PublishedVersion
	entries      map[string][]models.PublishedAssignment
	failures     map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		assignments:  map[string]models.Assignment{},
		availability: map[availabilityKey]models.Availability{},
		entities: map[models.EntityKind]map[string]bool{
			models.EntityTeacher: {"T1": true, "T2": true, "T3": true},
			models.EntityGroup:   {"G1": true, "G2": true, "G3": true},
			models.EntitySubject: {"S1": true, "S2": true, "S3": true},
		},
		entries:  map[string][]models.PublishedAssignment{},
		failures: map[string]error{},
	}
}

func (m *memStore) fail(op string) error {
	if err, ok := m.failures[op]; ok {
		return err
	}
	return nil
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

type memSnapshot struct {
	assignments  map[string]models.Assignment
	availability map[availabilityKey]models.Availability
	versions     []models.PublishedVersion
	entries      map[string][]models.PublishedAssignment
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := memSnapshot{
		assignments:  make(map[string]models.Assignment, len(m.assignments)),
		availability: make(map[availabilityKey]models.Availability, len(m.availability)),
		versions:     append([]models.PublishedVersion(nil), m.versions...),
		entries:      make(map[string][]models.PublishedAssignment, len(m.entries)),
	}
	for k, v := range m.assignments {
		snap.assignments[k] = v
	}
	for k, v := range m.availability {
		snap.availability[k] = v
	}
	for k, v := range m.entries {
		snap.entries[k] = append([]models.PublishedAssignment(nil), v...)
	}
	return snap
}

func (m *memStore) restore(snap memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments = snap.assignments
	m.availability = snap.availability
	m.versions = snap.versions
	m.entries = snap.entries
}

func (m *memStore) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, v := range m.versions {
		if v.Active {
			count++
		}
	}
	return count
}

type memTx struct {
	store *memStore
}

func (t *memTx) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	snap := t.store.snapshot()
	if err := fn(nil); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

type memAssignments struct{ *memStore }

func (r memAssignments) ListAll(ctx context.Context, exec sqlx.ExtContext) ([]models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("ListAll"); err != nil {
		return nil, err
	}
	out := make([]models.Assignment, 0, len(r.assignments))
	for _, a := range r.assignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAssignments) ListBySlot(ctx context.Context, exec sqlx.ExtContext, day models.Day, blockID int) ([]models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Assignment
	for _, a := range r.assignments {
		if a.Day == day && a.BlockID == blockID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r memAssignments) filter(match func(models.Assignment) bool) []models.Assignment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Assignment
	for _, a := range r.assignments {
		if match(a) {
			out = append(out, a)
		}
	}
	return out
}

func (r memAssignments) ListByGroup(ctx context.Context, groupID string) ([]models.Assignment, error) {
	return r.filter(func(a models.Assignment) bool { return a.GroupID == groupID }), nil
}

func (r memAssignments) ListByTeacher(ctx context.Context, teacherID string) ([]models.Assignment, error) {
	return r.filter(func(a models.Assignment) bool { return a.TeacherID == teacherID }), nil
}

func (r memAssignments) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

// uniqueViolation mirrors the storage unique indexes.
func (r memAssignments) uniqueViolation(candidate models.Assignment) error {
	for _, a := range r.assignments {
		if a.ID == candidate.ID || a.Day != candidate.Day || a.BlockID != candidate.BlockID {
			continue
		}
		if a.GroupID == candidate.GroupID {
			return &pq.Error{Code: "23505", Constraint: repository.ConstraintGroupSlot}
		}
		if a.TeacherID == candidate.TeacherID {
			return &pq.Error{Code: "23505", Constraint: repository.ConstraintTeacherSlot}
		}
	}
	return nil
}

func (r memAssignments) Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("Create"); err != nil {
		return err
	}
	if assignment.ID == "" {
		assignment.ID = r.nextID("a")
	}
	if err := r.uniqueViolation(*assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	assignment.CreatedAt = time.Now().UTC()
	assignment.UpdatedAt = assignment.CreatedAt
	r.assignments[assignment.ID] = *assignment
	return nil
}

func (r memAssignments) Update(ctx context.Context, exec sqlx.ExtContext, assignment *models.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assignments[assignment.ID]; !ok {
		return sql.ErrNoRows
	}
	if err := r.uniqueViolation(*assignment); err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	assignment.UpdatedAt = time.Now().UTC()
	r.assignments[assignment.ID] = *assignment
	return nil
}

func (r memAssignments) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assignments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.assignments, id)
	return nil
}

func (r memAssignments) CountByEntity(ctx context.Context, kind models.EntityKind, id string) (int, error) {
	match := map[models.EntityKind]func(models.Assignment) bool{
		models.EntityTeacher: func(a models.Assignment) bool { return a.TeacherID == id },
		models.EntityGroup:   func(a models.Assignment) bool { return a.GroupID == id },
		models.EntitySubject: func(a models.Assignment) bool { return a.SubjectID == id },
	}[kind]
	return len(r.filter(match)), nil
}

type memAvailability struct{ *memStore }

func (r memAvailability) Upsert(ctx context.Context, exec sqlx.ExtContext, availability *models.Availability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("Upsert"); err != nil {
		return err
	}
	availability.UpdatedAt = time.Now().UTC()
	r.availability[availabilityKey{availability.TeacherID, availability.Day, availability.BlockID}] = *availability
	return nil
}

func (r memAvailability) Get(ctx context.Context, teacherID string, day models.Day, blockID int) (*models.Availability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.availability[availabilityKey{teacherID, day, blockID}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &record, nil
}

func (r memAvailability) ListByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) ([]models.Availability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Availability
	for _, record := range r.availability {
		if record.TeacherID == teacherID {
			out = append(out, record)
		}
	}
	return out, nil
}

type memEntities struct{ *memStore }

func (r memEntities) Exists(ctx context.Context, exec sqlx.ExtContext, kind models.EntityKind, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("Exists"); err != nil {
		return false, err
	}
	return r.entities[kind][id], nil
}

type memPublications struct{ *memStore }

func (r memPublications) NextVersion(ctx context.Context, exec sqlx.ExtContext) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	highest := 0
	for _, v := range r.versions {
		if v.Version > highest {
			highest = v.Version
		}
	}
	return highest + 1, nil
}

func (r memPublications) DeactivateActive(ctx context.Context, exec sqlx.ExtContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("DeactivateActive"); err != nil {
		return err
	}
	for i := range r.versions {
		r.versions[i].Active = false
	}
	return nil
}

func (r memPublications) Create(ctx context.Context, exec sqlx.ExtContext, version *models.PublishedVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CreateVersion"); err != nil {
		return err
	}
	version.ID = r.nextID("v")
	stored := *version
	stored.Entries = nil
	r.versions = append(r.versions, stored)
	return nil
}

func (r memPublications) InsertEntries(ctx context.Context, exec sqlx.ExtContext, entries []models.PublishedAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("InsertEntries"); err != nil {
		return err
	}
	for i := range entries {
		entries[i].ID = r.nextID("p")
		r.entries[entries[i].VersionID] = append(r.entries[entries[i].VersionID], entries[i])
	}
	return nil
}

func (r memPublications) FindActive(ctx context.Context) (*models.PublishedVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.Active {
			out := v
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memPublications) FindByID(ctx context.Context, id string) (*models.PublishedVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.ID == id {
			out := v
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memPublications) List(ctx context.Context) ([]models.PublishedVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]models.PublishedVersion(nil), r.versions...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (r memPublications) ListEntries(ctx context.Context, versionID string) ([]models.PublishedAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.PublishedAssignment(nil), r.entries[versionID]...), nil
}

// memCache is a CacheRepository backed by a map of raw values.
type memCache struct {
	mu        sync.Mutex
	values    map[string]interface{}
	deletes   int
	getErr    error
	setErr    error
	deleteErr error
}

func newMemCache() *memCache {
	return &memCache{values: map[string]interface{}{}}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return c.getErr
	}
	value, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	switch d := dest.(type) {
	case *models.PublishedVersion:
		*d = value.(models.PublishedVersion)
	case *string:
		*d = value.(string)
	default:
		return fmt.Errorf("unsupported cache destination %T", dest)
	}
	return nil
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	if v, ok := value.(*models.PublishedVersion); ok {
		value = *v
	}
	c.values[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	for _, key := range keys {
		delete(c.values, key)
	}
	c.deletes++
	return nil
}

type engine struct {
	store        *memStore
	tx           *memTx
	cache        *memCache
	grid         *TimeGrid
	availability *AvailabilityService
	assignments  *AssignmentService
	publications *PublicationService
}

func newEngine(grid *TimeGrid) *engine {
	store := newMemStore()
	tx := &memTx{store: store}
	lock := NewBookLock(1, nil)
	cache := newMemCache()
	metrics := NewMetricsService()
	return &engine{
		store:        store,
		tx:           tx,
		cache:        cache,
		grid:         grid,
		availability: NewAvailabilityService(grid, memAvailability{store}, memEntities{store}, nil, nil),
		assignments:  NewAssignmentService(grid, memAssignments{store}, memAvailability{store}, memEntities{store}, tx, lock, metrics, nil, nil),
		publications: NewPublicationService(grid, memPublications{store}, memAssignments{store}, tx, lock,
			NewCacheService(cache, metrics, time.Minute, nil, true), metrics, PublicationConfig{}, nil),
	}
}
