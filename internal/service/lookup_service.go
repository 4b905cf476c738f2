package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campusbooks/registrar-api/internal/models"
	appErrors "github.com/campusbooks/registrar-api/pkg/errors"
)

type lookupCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Cached lookup readers sit between the registration prechecks and the term
// and course catalogs. Both catalogs change rarely and are read on every
// registration, so cached copies keep the hot path off the database. Cache
// failures degrade to direct reads.

// CachedTermReader is a read-through cache implementing termReader.
type CachedTermReader struct {
	terms  termReader
	cache  lookupCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedTermReader constructs the reader.
func NewCachedTermReader(terms termReader, cache lookupCache, ttl time.Duration, logger *zap.Logger) *CachedTermReader {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedTermReader{terms: terms, cache: cache, ttl: ttl, logger: logger}
}

// FindByID returns a term, preferring the cached copy.
func (r *CachedTermReader) FindByID(ctx context.Context, id string) (*models.Term, error) {
	key := "lookup:term:" + id
	var term models.Term
	if err := r.cache.Get(ctx, key, &term); err == nil {
		return &term, nil
	} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
		r.logger.Warn("term cache read failed", zap.String("term_id", id), zap.Error(err))
	}

	fresh, err := r.terms.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, fresh, r.ttl); err != nil {
		r.logger.Warn("term cache write failed", zap.String("term_id", id), zap.Error(err))
	}
	return fresh, nil
}

// CachedCourseReader is a read-through cache implementing courseReader.
// FindByIDs passes through: it only runs on the PREREQ_NOT_MET error path.
type CachedCourseReader struct {
	courses courseReader
	cache   lookupCache
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCachedCourseReader constructs the reader.
func NewCachedCourseReader(courses courseReader, cache lookupCache, ttl time.Duration, logger *zap.Logger) *CachedCourseReader {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCourseReader{courses: courses, cache: cache, ttl: ttl, logger: logger}
}

// FindByID returns a course, preferring the cached copy.
func (r *CachedCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	key := "lookup:course:" + id
	var course models.Course
	if err := r.cache.Get(ctx, key, &course); err == nil {
		return &course, nil
	} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
		r.logger.Warn("course cache read failed", zap.String("course_id", id), zap.Error(err))
	}

	fresh, err := r.courses.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, fresh, r.ttl); err != nil {
		r.logger.Warn("course cache write failed", zap.String("course_id", id), zap.Error(err))
	}
	return fresh, nil
}

// Prerequisites returns cached prerequisite IDs for a course.
func (r *CachedCourseReader) Prerequisites(ctx context.Context, courseID string) ([]string, error) {
	key := "lookup:prereq:" + courseID
	var ids []string
	if err := r.cache.Get(ctx, key, &ids); err == nil {
		return ids, nil
	} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
		r.logger.Warn("prerequisite cache read failed", zap.String("course_id", courseID), zap.Error(err))
	}

	fresh, err := r.courses.Prerequisites(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, fresh, r.ttl); err != nil {
		r.logger.Warn("prerequisite cache write failed", zap.String("course_id", courseID), zap.Error(err))
	}
	return fresh, nil
}

// FindByIDs resolves courses directly from the catalog.
func (r *CachedCourseReader) FindByIDs(ctx context.Context, ids []string) ([]models.Course, error) {
	return r.courses.FindByIDs(ctx, ids)
}
