package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type timeBlockRepository interface {
	List(ctx context.Context) ([]models.TimeBlock, error)
}

const clockLayout = "15:04"

// TimeGrid is the immutable catalog of (day, block) coordinates.
type TimeGrid struct {
	days   []models.Day
	blocks []models.TimeBlock
	order  map[int]int
}

// LoadTimeGrid reads the seeded blocks once at startup.
func LoadTimeGrid(ctx context.Context, repo timeBlockRepository) (*TimeGrid, error) {
	blocks, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load time blocks: %w", err)
	}
	return NewTimeGrid(blocks)
}

// NewTimeGrid validates blocks and orders them by start time. Empty, duplicate or overlapping blocks are rejected.
func NewTimeGrid(blocks []models.TimeBlock) (*TimeGrid, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("time grid has no blocks")
	}

	type bounds struct {
		block      models.TimeBlock
		start, end time.Time
	}
	parsed := make([]bounds, 0, len(blocks))
	seen := make(map[int]struct{}, len(blocks))
	for _, block := range blocks {
		if _, dup := seen[block.ID]; dup {
			return nil, fmt.Errorf("duplicate time block %d", block.ID)
		}
		seen[block.ID] = struct{}{}

		start, err := time.Parse(clockLayout, block.StartTime)
		if err != nil {
			return nil, fmt.Errorf("time block %d start %q: %w", block.ID, block.StartTime, err)
		}
		end, err := time.Parse(clockLayout, block.EndTime)
		if err != nil {
			return nil, fmt.Errorf("time block %d end %q: %w", block.ID, block.EndTime, err)
		}
		if !start.Before(end) {
			return nil, fmt.Errorf("time block %d ends before it starts", block.ID)
		}
		parsed = append(parsed, bounds{block: block, start: start, end: end})
	}

	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].start.Before(parsed[j].start) })

	grid := &TimeGrid{
		days:   models.WeekDays(),
		blocks: make([]models.TimeBlock, len(parsed)),
		order:  make(map[int]int, len(parsed)),
	}
	for i, p := range parsed {
		if i > 0 && p.start.Before(parsed[i-1].end) {
			return nil, fmt.Errorf("time block %d overlaps block %d", p.block.ID, parsed[i-1].block.ID)
		}
		grid.blocks[i] = p.block
		grid.order[p.block.ID] = i
	}
	return grid, nil
}

// Blocks returns the blocks ordered by start time.
func (g *TimeGrid) Blocks() []models.TimeBlock {
	out := make([]models.TimeBlock, len(g.blocks))
	copy(out, g.blocks)
	return out
}

// Days returns the grid days in week order.
func (g *TimeGrid) Days() []models.Day {
	out := make([]models.Day, len(g.days))
	copy(out, g.days)
	return out
}

// Block looks up a block by id.
func (g *TimeGrid) Block(blockID int) (models.TimeBlock, error) {
	idx, ok := g.order[blockID]
	if !ok {
		return models.TimeBlock{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("time block %d not found", blockID))
	}
	return g.blocks[idx], nil
}

// IsValidCoordinate reports whether day and block both exist in the grid.
func (g *TimeGrid) IsValidCoordinate(day models.Day, blockID int) bool {
	if !day.Valid() {
		return false
	}
	_, ok := g.order[blockID]
	return ok
}

// validateCoordinate returns a validation error for an unknown day or block.
func (g *TimeGrid) validateCoordinate(day models.Day, blockID int) error {
	if !day.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown day %q", day))
	}
	if _, ok := g.order[blockID]; !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown time block %d", blockID))
	}
	return nil
}

// less orders slots by day, then block start time.
func (g *TimeGrid) less(a, b models.Slot) bool {
	if a.Day != b.Day {
		return a.Day.Index() < b.Day.Index()
	}
	return g.position(a.BlockID) < g.position(b.BlockID)
}

func (g *TimeGrid) position(blockID int) int {
	if idx, ok := g.order[blockID]; ok {
		return idx
	}
	return len(g.blocks)
}

// sortAssignments orders assignments by day then block start.
func (g *TimeGrid) sortAssignments(items []models.Assignment) {
	sort.SliceStable(items, func(i, j int) bool { return g.less(items[i].Slot(), items[j].Slot()) })
}

// Response renders the grid for API clients.
func (g *TimeGrid) Response() models.GridResponse {
	return models.GridResponse{Days: g.Days(), Blocks: g.Blocks()}
}
