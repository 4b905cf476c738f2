package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campusbooks/registrar-api/internal/models"
)

// SectionRepository handles read-only access to class sections. Mutations go
// through the settlement store, which locks the row first.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// FindByID returns a class section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.ClassSection, error) {
	const query = `SELECT id, course_id, term_id, code, max_capacity, current_enrollment, open, created_at, updated_at
        FROM class_sections WHERE id = $1`
	var section models.ClassSection
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// Events returns the weekly schedule events of a section.
func (r *SectionRepository) Events(ctx context.Context, sectionID string) ([]models.ScheduleEvent, error) {
	const query = `SELECT id, class_section_id, day_of_week, start_minute, end_minute, room
        FROM schedule_events WHERE class_section_id = $1`
	var events []models.ScheduleEvent
	if err := r.db.SelectContext(ctx, &events, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section events: %w", err)
	}
	return events, nil
}
