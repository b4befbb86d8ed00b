package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tourism_media/internal/domain/models"
)

const (
	placesTable  = "places"
	ratingsTable = "ratings"
)

var placeColumns = []string{
	"id",
	"name",
	"description",
	"location",
	"category",
	"average_rating",
	"total_ratings",
	"principal_photo_url",
	"created_at",
	"updated_at",
}

var ratingColumns = []string{
	"id",
	"place_id",
	"author",
	"score",
	"comment",
	"created_at",
}

type PlaceRepo struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

func NewPlaceRepo(db *pgxpool.Pool) *PlaceRepo {
	return &PlaceRepo{
		db: db,
		sb: statementBuilder(),
	}
}

func (r *PlaceRepo) CreatePlace(ctx context.Context, place models.Place) (models.Place, error) {
	const op = "repository.PlaceRepo.CreatePlace"

	query, args, err := r.sb.Insert(placesTable).
		Columns("name", "description", "location", "category").
		Values(place.Name, place.Description, place.Location, place.Category).
		Suffix("RETURNING " + strings.Join(placeColumns, ", ")).
		ToSql()
	if err != nil {
		return models.Place{}, fmt.Errorf("%s: %w", op, err)
	}

	created, err := scanPlace(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return models.Place{}, mapError(op, err)
	}

	return created, nil
}

func (r *PlaceRepo) GetPlace(ctx context.Context, id uuid.UUID) (models.Place, error) {
	const op = "repository.PlaceRepo.GetPlace"

	query, args, err := r.sb.Select(placeColumns...).
		From(placesTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return models.Place{}, fmt.Errorf("%s: %w", op, err)
	}

	place, err := scanPlace(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return models.Place{}, mapError(op, err)
	}

	return place, nil
}

// DeletePlace удаляет место каскадно вместе с фото и оценками
// и возвращает пути блобов удаленных фото
func (r *PlaceRepo) DeletePlace(ctx context.Context, id uuid.UUID) ([]string, error) {
	const op = "repository.PlaceRepo.DeletePlace"

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := lockPlace(ctx, tx, r.sb, id); err != nil {
		return nil, mapError(op, err)
	}

	pathsQuery, pathsArgs, err := r.sb.Select("storage_path").
		From(photosTable).
		Where(squirrel.Eq{"place_id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := tx.Query(ctx, pathsQuery, pathsArgs...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		paths = append(paths, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	query, args, err := r.sb.Delete(placesTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	return paths, nil
}

// AddRating сохраняет оценку и пересчитывает агрегаты места в одной транзакции
func (r *PlaceRepo) AddRating(ctx context.Context, rating models.Rating) (models.Rating, models.Place, error) {
	const op = "repository.PlaceRepo.AddRating"

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return models.Rating{}, models.Place{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := lockPlace(ctx, tx, r.sb, rating.PlaceID); err != nil {
		return models.Rating{}, models.Place{}, mapError(op, err)
	}

	query, args, err := r.sb.Insert(ratingsTable).
		Columns("place_id", "author", "score", "comment").
		Values(rating.PlaceID, rating.Author, rating.Score, rating.Comment).
		Suffix("RETURNING " + strings.Join(ratingColumns, ", ")).
		ToSql()
	if err != nil {
		return models.Rating{}, models.Place{}, fmt.Errorf("%s: %w", op, err)
	}

	created, err := scanRating(tx.QueryRow(ctx, query, args...))
	if err != nil {
		return models.Rating{}, models.Place{}, mapError(op, err)
	}

	place, err := r.recompute(ctx, tx, rating.PlaceID)
	if err != nil {
		return models.Rating{}, models.Place{}, mapError(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Rating{}, models.Place{}, fmt.Errorf("%s: commit: %w", op, err)
	}

	return created, place, nil
}

// RecomputeRatingRollup идемпотентно пересчитывает среднее и количество оценок
func (r *PlaceRepo) RecomputeRatingRollup(ctx context.Context, placeID uuid.UUID) (models.Place, error) {
	const op = "repository.PlaceRepo.RecomputeRatingRollup"

	place, err := r.recompute(ctx, r.db, placeID)
	if err != nil {
		return models.Place{}, mapError(op, err)
	}

	return place, nil
}

func (r *PlaceRepo) recompute(ctx context.Context, q querier, placeID uuid.UUID) (models.Place, error) {
	query, args, err := r.sb.Update(placesTable).
		Set("average_rating", squirrel.Expr(
			"COALESCE((SELECT ROUND(AVG(score)::numeric, 2)::float8 FROM ratings WHERE place_id = ?), 0)", placeID)).
		Set("total_ratings", squirrel.Expr(
			"(SELECT COUNT(*) FROM ratings WHERE place_id = ?)", placeID)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": placeID}).
		Suffix("RETURNING " + strings.Join(placeColumns, ", ")).
		ToSql()
	if err != nil {
		return models.Place{}, err
	}

	return scanPlace(q.QueryRow(ctx, query, args...))
}

// RefreshPrincipalPhoto выводит principal_photo_url заново из таблицы фото
func (r *PlaceRepo) RefreshPrincipalPhoto(ctx context.Context, placeID uuid.UUID) (models.Place, error) {
	const op = "repository.PlaceRepo.RefreshPrincipalPhoto"

	query, args, err := r.sb.Update(placesTable).
		Set("principal_photo_url", squirrel.Expr(
			"(SELECT url FROM photos WHERE place_id = ? AND is_principal LIMIT 1)", placeID)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": placeID}).
		Suffix("RETURNING " + strings.Join(placeColumns, ", ")).
		ToSql()
	if err != nil {
		return models.Place{}, fmt.Errorf("%s: %w", op, err)
	}

	place, err := scanPlace(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return models.Place{}, mapError(op, err)
	}

	return place, nil
}

// ListRatings оценки места, новые первыми
func (r *PlaceRepo) ListRatings(ctx context.Context, placeID uuid.UUID, page, limit int) ([]models.Rating, int, error) {
	const op = "repository.PlaceRepo.ListRatings"

	page, limit = models.NormalizePage(page, limit)

	countQuery, countArgs, err := r.sb.Select("COUNT(*)").
		From(ratingsTable).
		Where(squirrel.Eq{"place_id": placeID}).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}

	query, args, err := r.sb.Select(ratingColumns...).
		From(ratingsTable).
		Where(squirrel.Eq{"place_id": placeID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64((page - 1) * limit)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	ratings := make([]models.Rating, 0, limit)
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		ratings = append(ratings, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	return ratings, total, nil
}

func scanPlace(row pgx.Row) (models.Place, error) {
	var p models.Place
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Location,
		&p.Category,
		&p.AverageRating,
		&p.TotalRatings,
		&p.PrincipalPhotoURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func scanRating(row pgx.Row) (models.Rating, error) {
	var r models.Rating
	err := row.Scan(
		&r.ID,
		&r.PlaceID,
		&r.Author,
		&r.Score,
		&r.Comment,
		&r.CreatedAt,
	)
	return r, err
}
