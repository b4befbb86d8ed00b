package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tourism_media/internal/domain/models"
)

// querier общая часть pgxpool.Pool и pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type Repository struct {
	db          *pgxpool.Pool
	Places      *PlaceRepo
	Gallery     *GalleryRepo
	Experiences *ExperienceRepo
	Blobs       *BlobRepo
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db:          db,
		Places:      NewPlaceRepo(db),
		Gallery:     NewGalleryRepo(db),
		Experiences: NewExperienceRepo(db),
		Blobs:       NewBlobRepo(db),
	}
}

func (r *Repository) Close() {
	r.db.Close()
}

func statementBuilder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// mapError переводит ошибки драйвера в доменные
func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, models.ErrNotFound)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// lockPlace берет построчную блокировку места до конца транзакции
func lockPlace(ctx context.Context, tx pgx.Tx, sb squirrel.StatementBuilderType, placeID uuid.UUID) error {
	query, args, err := sb.Select("id").
		From("places").
		Where(squirrel.Eq{"id": placeID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return err
	}

	var id uuid.UUID
	return tx.QueryRow(ctx, query, args...).Scan(&id)
}
