package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tourism_media/internal/domain/models"
)

const experiencesTable = "experiences"

var experienceColumns = []string{
	"id",
	"photo_url",
	"storage_path",
	"description",
	"place_id",
	"state",
	"moderation_score",
	"moderation_categories",
	"text_flags",
	"view_count",
	"created_at",
	"decided_at",
}

type ExperienceRepo struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

func NewExperienceRepo(db *pgxpool.Pool) *ExperienceRepo {
	return &ExperienceRepo{
		db: db,
		sb: statementBuilder(),
	}
}

// CreateExperience сохраняет заявку, неизвестное место дает ErrNotFound
func (r *ExperienceRepo) CreateExperience(ctx context.Context, e *models.Experience) error {
	const op = "repository.ExperienceRepo.CreateExperience"

	categories, err := categoriesParam(e.ModerationCategories)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query, args, err := r.sb.Insert(experiencesTable).
		Columns(
			"photo_url",
			"storage_path",
			"description",
			"place_id",
			"state",
			"moderation_score",
			"moderation_categories",
			"text_flags",
			"decided_at",
		).
		Values(
			e.PhotoURL,
			e.StoragePath,
			e.Description,
			e.PlaceID,
			string(e.State),
			e.ModerationScore,
			categories,
			e.TextFlags,
			e.DecidedAt,
		).
		Suffix("RETURNING " + strings.Join(experienceColumns, ", ")).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	created, err := scanExperience(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return mapError(op, err)
	}

	*e = created

	return nil
}

func (r *ExperienceRepo) GetExperience(ctx context.Context, id uuid.UUID) (models.Experience, error) {
	const op = "repository.ExperienceRepo.GetExperience"

	query, args, err := r.sb.Select(experienceColumns...).
		From(experiencesTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return models.Experience{}, fmt.Errorf("%s: %w", op, err)
	}

	e, err := scanExperience(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return models.Experience{}, mapError(op, err)
	}

	return e, nil
}

func (r *ExperienceRepo) ExperienceExists(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "repository.ExperienceRepo.ExperienceExists"

	query, args, err := r.sb.Select("1").
		Prefix("SELECT EXISTS (").
		From(experiencesTable).
		Where(squirrel.Eq{"id": id}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

// DecideIfPending условный переход: обновление проходит только из pending.
// При проигранной гонке или повторном решении возвращает текущую запись и false.
func (r *ExperienceRepo) DecideIfPending(ctx context.Context, id uuid.UUID, state models.ExperienceState, decidedAt time.Time) (models.Experience, bool, error) {
	const op = "repository.ExperienceRepo.DecideIfPending"

	query, args, err := r.sb.Update(experiencesTable).
		Set("state", string(state)).
		Set("decided_at", decidedAt).
		Where(squirrel.Eq{"id": id, "state": string(models.StatePending)}).
		Suffix("RETURNING " + strings.Join(experienceColumns, ", ")).
		ToSql()
	if err != nil {
		return models.Experience{}, false, fmt.Errorf("%s: %w", op, err)
	}

	e, err := scanExperience(r.db.QueryRow(ctx, query, args...))
	if err == nil {
		return e, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Experience{}, false, fmt.Errorf("%s: %w", op, err)
	}

	current, err := r.GetExperience(ctx, id)
	if err != nil {
		return models.Experience{}, false, err
	}

	return current, false, nil
}

// AddViews прибавляет n просмотров независимо от состояния заявки
func (r *ExperienceRepo) AddViews(ctx context.Context, id uuid.UUID, n int64) error {
	const op = "repository.ExperienceRepo.AddViews"

	query, args, err := r.sb.Update(experiencesTable).
		Set("view_count", squirrel.Expr("view_count + ?", n)).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}

	return nil
}

// ListByState страница заявок в состоянии state, новые первыми
func (r *ExperienceRepo) ListByState(ctx context.Context, state models.ExperienceState, filter models.ExperienceFilter) ([]models.Experience, int, error) {
	const op = "repository.ExperienceRepo.ListByState"

	filter.Normalize()

	where := squirrel.Eq{"state": string(state)}
	if filter.PlaceID != nil {
		where["place_id"] = *filter.PlaceID
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	countQuery, countArgs, err := r.sb.Select("COUNT(*)").
		From(experiencesTable).
		Where(where).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	var total int
	if err := tx.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}

	query, args, err := r.sb.Select(experienceColumns...).
		From(experiencesTable).
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]models.Experience, 0, filter.Limit)
	for rows.Next() {
		e, err := scanExperience(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	return items, total, nil
}

// Stats считает заявки по состояниям и сумму просмотров одним запросом на снимке
func (r *ExperienceRepo) Stats(ctx context.Context) (models.ExperienceStats, error) {
	const op = "repository.ExperienceRepo.Stats"

	stats := models.ExperienceStats{
		CountsByState: map[models.ExperienceState]int64{
			models.StatePending:  0,
			models.StateApproved: 0,
			models.StateRejected: 0,
		},
	}

	query, args, err := r.sb.Select("state", "COUNT(*)", "COALESCE(SUM(view_count), 0)::bigint").
		From(experiencesTable).
		GroupBy("state").
		ToSql()
	if err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return stats, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			state string
			count int64
			views int64
		)
		if err := rows.Scan(&state, &count, &views); err != nil {
			return stats, fmt.Errorf("%s: %w", op, err)
		}
		stats.CountsByState[models.ExperienceState(state)] = count
		stats.TotalViews += views
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}

	return stats, nil
}

func scanExperience(row pgx.Row) (models.Experience, error) {
	var (
		e          models.Experience
		state      string
		categories []byte
	)
	err := row.Scan(
		&e.ID,
		&e.PhotoURL,
		&e.StoragePath,
		&e.Description,
		&e.PlaceID,
		&state,
		&e.ModerationScore,
		&categories,
		&e.TextFlags,
		&e.ViewCount,
		&e.CreatedAt,
		&e.DecidedAt,
	)
	if err != nil {
		return models.Experience{}, err
	}

	e.State = models.ExperienceState(state)
	if categories != nil {
		var c models.ModerationCategories
		if err := c.Scan(categories); err != nil {
			return models.Experience{}, fmt.Errorf("decode moderation categories: %w", err)
		}
		e.ModerationCategories = &c
	}

	return e, nil
}

// categoriesParam JSONB передаем текстом
func categoriesParam(c *models.ModerationCategories) (*string, error) {
	if c == nil {
		return nil, nil
	}
	v, err := c.Value()
	if err != nil {
		return nil, err
	}
	s := string(v.([]byte))
	return &s, nil
}
