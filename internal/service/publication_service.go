package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
)

const activeVersionCacheKey = "timetable:published:active"

type publicationRepository interface {
	NextVersion(ctx context.Context, exec sqlx.ExtContext) (int, error)
	DeactivateActive(ctx context.Context, exec sqlx.ExtContext) error
	Create(ctx context.Context, exec sqlx.ExtContext, version *models.PublishedVersion) error
	InsertEntries(ctx context.Context, exec sqlx.ExtContext, entries []models.PublishedAssignment) error
	FindActive(ctx context.Context) (*models.PublishedVersion, error)
	FindByID(ctx context.Context, id string) (*models.PublishedVersion, error)
	List(ctx context.Context) ([]models.PublishedVersion, error)
	ListEntries(ctx context.Context, versionID string) ([]models.PublishedAssignment, error)
}

type bookSource interface {
	ListAll(ctx context.Context, exec sqlx.ExtContext) ([]models.Assignment, error)
}

type versionCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(grid export.Grid) ([]byte, error)
}

type xlsxRenderer interface {
	Render(grid export.Grid, data export.Dataset) ([]byte, error)
}

// ExportedFile is a rendered published timetable.
type ExportedFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// PublicationConfig tunes publication reads and exports.
type PublicationConfig struct {
	CacheTTL    time.Duration
	ExportTitle string
}

// PublicationService freezes the assignment book into versioned snapshots.
type PublicationService struct {
	grid    *TimeGrid
	repo    publicationRepository
	book    bookSource
	tx      txRunner
	lock    *BookLock
	cache   versionCache
	metrics *MetricsService
	csv     csvRenderer
	pdf     pdfRenderer
	xlsx    xlsxRenderer
	cfg     PublicationConfig
	logger  *zap.Logger
	now     func() time.Time

	// cacheMu orders cache writes against publishes. generation moves on every publish,
	// cacheStale is set when a publish could neither refresh nor drop the cached entry.
	cacheMu    sync.Mutex
	generation uint64
	cacheStale bool
}

// NewPublicationService instantiates PublicationService. lock must be the one shared with AssignmentService.
func NewPublicationService(grid *TimeGrid, repo publicationRepository, book bookSource, tx txRunner, lock *BookLock, cache versionCache, metrics *MetricsService, cfg PublicationConfig, logger *zap.Logger) *PublicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lock == nil {
		lock = NewBookLock(0, nil)
	}
	if cfg.ExportTitle == "" {
		cfg.ExportTitle = "Weekly Timetable"
	}
	return &PublicationService{
		grid:    grid,
		repo:    repo,
		book:    book,
		tx:      tx,
		lock:    lock,
		cache:   cache,
		metrics: metrics,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		xlsx:    export.NewXLSXExporter(),
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Publish snapshots the whole book as the new active version in one transaction.
func (s *PublicationService) Publish(ctx context.Context, principal models.Principal) (*models.PublishedVersion, error) {
	start := time.Now()
	var version models.PublishedVersion

	err := s.lock.Run(ctx, s.tx, func(exec sqlx.ExtContext) error {
		book, err := s.book.ListAll(ctx, exec)
		if err != nil {
			return err
		}
		next, err := s.repo.NextVersion(ctx, exec)
		if err != nil {
			return err
		}
		if err := s.repo.DeactivateActive(ctx, exec); err != nil {
			return err
		}

		version = models.PublishedVersion{
			Version:     next,
			CreatedAt:   s.now(),
			PublishedBy: principal.UserID,
			Active:      true,
		}
		if err := s.repo.Create(ctx, exec, &version); err != nil {
			return err
		}

		entries := make([]models.PublishedAssignment, 0, len(book))
		for _, a := range book {
			entries = append(entries, models.PublishedAssignment{
				VersionID:    version.ID,
				AssignmentID: a.ID,
				GroupID:      a.GroupID,
				TeacherID:    a.TeacherID,
				SubjectID:    a.SubjectID,
				Day:          a.Day,
				BlockID:      a.BlockID,
			})
		}
		if err := s.repo.InsertEntries(ctx, exec, entries); err != nil {
			return err
		}
		version.Entries = entries
		return nil
	})
	if err != nil {
		s.logger.Error("publish failed", zap.String("user_id", principal.UserID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to publish timetable")
	}

	s.refreshActiveCache(ctx, &version)
	s.metrics.RecordPublication(len(version.Entries), time.Since(start))
	s.logger.Info("timetable published",
		zap.String("version_id", version.ID),
		zap.Int("version", version.Version),
		zap.Int("assignments", len(version.Entries)),
		zap.String("user_id", principal.UserID),
	)
	return &version, nil
}

// ActiveVersion returns the active snapshot with its entries, or nil before the first publication.
func (s *PublicationService) ActiveVersion(ctx context.Context) (*models.PublishedVersion, error) {
	generation, stale := s.cacheState()
	if s.cache != nil && !stale {
		var cached models.PublishedVersion
		if hit, _ := s.cache.Get(ctx, activeVersionCacheKey, &cached); hit {
			if cached.Entries == nil {
				cached.Entries = []models.PublishedAssignment{}
			}
			return &cached, nil
		}
	}

	version, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load active version")
	}
	if err := s.loadEntries(ctx, version); err != nil {
		return nil, err
	}

	s.storeActiveCache(ctx, generation, version)
	return version, nil
}

func (s *PublicationService) cacheState() (uint64, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation, s.cacheStale
}

// storeActiveCache writes a version read from storage unless a publish happened since the read began.
func (s *PublicationService) storeActiveCache(ctx context.Context, generation uint64, version *models.PublishedVersion) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation != generation {
		return
	}
	if err := s.cache.Set(ctx, activeVersionCacheKey, version, s.cfg.CacheTTL); err != nil {
		return
	}
	s.cacheStale = false
}

// refreshActiveCache replaces the cached entry with a freshly committed version. When the
// cache rejects both the write and the delete, reads go to storage until a write succeeds.
func (s *PublicationService) refreshActiveCache(ctx context.Context, version *models.PublishedVersion) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, activeVersionCacheKey, version, s.cfg.CacheTTL); err == nil {
		s.cacheStale = false
		return
	}
	if err := s.cache.Invalidate(ctx, activeVersionCacheKey); err != nil {
		s.cacheStale = true
		s.logger.Warn("active version cache left stale, reading from storage",
			zap.String("version_id", version.ID), zap.Error(err))
		return
	}
	s.cacheStale = false
}

// History lists version metadata newest first.
func (s *PublicationService) History(ctx context.Context) ([]models.PublishedVersion, error) {
	versions, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list published versions")
	}
	if versions == nil {
		versions = []models.PublishedVersion{}
	}
	return versions, nil
}

// Version loads one snapshot with its entries.
func (s *PublicationService) Version(ctx context.Context, id string) (*models.PublishedVersion, error) {
	version, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "published version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load published version")
	}
	if err := s.loadEntries(ctx, version); err != nil {
		return nil, err
	}
	return version, nil
}

// Export renders a snapshot as a flat CSV listing, a PDF grid or a workbook holding both.
func (s *PublicationService) Export(ctx context.Context, id string, format models.ExportFormat) (*ExportedFile, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	version, err := s.Version(ctx, id)
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("timetable-v%d.%s", version.Version, format)
	switch format {
	case models.ExportFormatCSV:
		body, err := s.csv.Render(s.dataset(version))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportedFile{Filename: filename, ContentType: "text/csv", Body: body}, nil
	case models.ExportFormatXLSX:
		body, err := s.xlsx.Render(s.gridLayout(version), s.dataset(version))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render xlsx")
		}
		return &ExportedFile{Filename: filename, ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Body: body}, nil
	case models.ExportFormatPDF:
		body, err := s.pdf.Render(s.gridLayout(version))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportedFile{Filename: filename, ContentType: "application/pdf", Body: body}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func (s *PublicationService) loadEntries(ctx context.Context, version *models.PublishedVersion) error {
	entries, err := s.repo.ListEntries(ctx, version.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load published assignments")
	}
	if entries == nil {
		entries = []models.PublishedAssignment{}
	}
	version.Entries = entries
	return nil
}

func (s *PublicationService) dataset(version *models.PublishedVersion) export.Dataset {
	data := export.Dataset{Headers: []string{"version", "day", "block", "start", "end", "group", "subject", "teacher"}}
	for _, e := range s.sortedEntries(version.Entries) {
		block, _ := s.grid.Block(e.BlockID)
		data.Rows = append(data.Rows, []string{
			strconv.Itoa(version.Version),
			string(e.Day),
			strconv.Itoa(e.BlockID),
			block.StartTime,
			block.EndTime,
			e.GroupID,
			e.SubjectID,
			e.TeacherID,
		})
	}
	return data
}

func (s *PublicationService) gridLayout(version *models.PublishedVersion) export.Grid {
	days := s.grid.Days()
	cells := make(map[models.Slot][]string)
	for _, e := range s.sortedEntries(version.Entries) {
		slot := models.Slot{Day: e.Day, BlockID: e.BlockID}
		cells[slot] = append(cells[slot], fmt.Sprintf("%s %s (%s)", e.GroupID, e.SubjectID, e.TeacherID))
	}

	grid := export.Grid{
		Title:    s.cfg.ExportTitle,
		Subtitle: fmt.Sprintf("Version %d published %s by %s", version.Version, version.CreatedAt.Format("2006-01-02 15:04"), version.PublishedBy),
	}
	for _, day := range days {
		grid.Columns = append(grid.Columns, string(day))
	}
	for _, block := range s.grid.Blocks() {
		row := export.GridRow{Label: fmt.Sprintf("%s\n%s-%s", block.Label, block.StartTime, block.EndTime)}
		for _, day := range days {
			row.Cells = append(row.Cells, strings.Join(cells[models.Slot{Day: day, BlockID: block.ID}], "\n"))
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid
}

func (s *PublicationService) sortedEntries(entries []models.PublishedAssignment) []models.PublishedAssignment {
	out := make([]models.PublishedAssignment, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		a := models.Slot{Day: out[i].Day, BlockID: out[i].BlockID}
		b := models.Slot{Day: out[j].Day, BlockID: out[j].BlockID}
		if a != b {
			return s.grid.less(a, b)
		}
		return out[i].GroupID < out[j].GroupID
	})
	return out
}
