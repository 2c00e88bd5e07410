package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	errx "github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

var errNoEmbedder = errors.New("semantic search requires an embedder")

// Courses serves course, schedule, promotion and QnA lookups.
// Semantic lookups rank rows by pgvector cosine distance on the embedding column.
type Courses struct {
	db       bun.IDB
	embedder contractx.Embedder
}

func NewCourses(db bun.IDB, embedder contractx.Embedder) *Courses {
	return &Courses{db: db, embedder: embedder}
}

func (r *Courses) SearchCoursesByName(ctx context.Context, keywords string, limit int) ([]statex.SeenItem, error) {
	keywords = strings.TrimSpace(keywords)
	if keywords == "" {
		return nil, nil
	}
	var rows []courseModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("c.name ILIKE ?", "%"+keywords+"%").
		Order("c.course_id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		logx.Error().Err(err).Str("keywords", keywords).Msg("failed to search courses by name")
		return nil, errx.WrapDB(err)
	}
	return toSeenItems(rows), nil
}

func (r *Courses) SearchCoursesSemantic(ctx context.Context, query string, limit int) ([]statex.SeenItem, error) {
	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	var rows []courseModel
	err = r.db.NewSelect().
		Model(&rows).
		Where("c.embedding IS NOT NULL").
		OrderExpr("c.embedding <=> ?::vector", vectorLiteral(vec)).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("failed to search courses semantically")
		return nil, errx.WrapDB(err)
	}
	return toSeenItems(rows), nil
}

func (r *Courses) CoursesByIDs(ctx context.Context, ids []int64) ([]statex.SeenItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []courseModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("c.course_id IN (?)", bun.In(ids)).
		Order("c.course_id ASC").
		Scan(ctx)
	if err != nil {
		logx.Error().Err(err).Ints64("course_ids", ids).Msg("failed to load courses")
		return nil, errx.WrapDB(err)
	}
	return toSeenItems(rows), nil
}

func (r *Courses) PromotedCourses(ctx context.Context, limit int) ([]statex.SeenItem, error) {
	var rows []courseModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("c.promotion > 0").
		OrderExpr("c.promotion DESC, c.course_id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("failed to load promoted courses")
		return nil, errx.WrapDB(err)
	}
	return toSeenItems(rows), nil
}

// Schedules returns the course's schedules, earliest start first.
func (r *Courses) Schedules(ctx context.Context, courseID int64) ([]contractx.Schedule, error) {
	var rows []scheduleModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("sc.course_id = ?", courseID).
		Order("sc.start_date ASC").
		Scan(ctx)
	if err != nil {
		logx.Error().Err(err).Int64("course_id", courseID).Msg("failed to load schedules")
		return nil, errx.WrapDB(err)
	}
	out := make([]contractx.Schedule, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toSchedule())
	}
	return out, nil
}

func (r *Courses) SearchQnA(ctx context.Context, query string, limit int) ([]string, error) {
	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	var rows []qnaModel
	err = r.db.NewSelect().
		Model(&rows).
		Column("q.id", "q.content").
		OrderExpr("q.embedding <=> ?::vector", vectorLiteral(vec)).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("failed to search qna")
		return nil, errx.WrapDB(err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if c := strings.TrimSpace(row.Content); c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *Courses) embed(ctx context.Context, text string) ([]float32, error) {
	if r.embedder == nil {
		return nil, errx.Upstream(errNoEmbedder, "embed query")
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errx.Upstream(fmt.Errorf("embed query: %w", err), "embed query")
	}
	return vec, nil
}

func toSeenItems(rows []courseModel) []statex.SeenItem {
	out := make([]statex.SeenItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toSeenItem())
	}
	return out
}

var _ contractx.Catalog = (*Courses)(nil)
