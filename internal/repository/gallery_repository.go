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

const photosTable = "photos"

var photoColumns = []string{
	"id",
	"place_id",
	"url",
	"storage_path",
	"is_principal",
	"sort_order",
	"description",
	"width",
	"height",
	"file_size",
	"mime_type",
	"created_at",
	"updated_at",
}

type GalleryRepo struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

func NewGalleryRepo(db *pgxpool.Pool) *GalleryRepo {
	return &GalleryRepo{
		db: db,
		sb: statementBuilder(),
	}
}

// InPlaceTx сериализует изменения галереи одного места через SELECT ... FOR UPDATE
func (r *GalleryRepo) InPlaceTx(ctx context.Context, placeID uuid.UUID, fn func(ctx context.Context, tx GalleryTx) error) error {
	const op = "repository.GalleryRepo.InPlaceTx"

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := lockPlace(ctx, tx, r.sb, placeID); err != nil {
		return mapError(op, err)
	}

	if err := fn(ctx, &galleryTx{q: tx, sb: r.sb}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

// ListPhotos возвращает фото места в порядке галереи
func (r *GalleryRepo) ListPhotos(ctx context.Context, placeID uuid.UUID) ([]models.Photo, error) {
	return listPhotos(ctx, r.db, r.sb, placeID)
}

// UpdatePhotoDescription меняет только описание, порядок и главное фото не трогает.
// Фото другого места считается ненайденным.
func (r *GalleryRepo) UpdatePhotoDescription(ctx context.Context, placeID, photoID uuid.UUID, description *string) (models.Photo, error) {
	const op = "repository.GalleryRepo.UpdatePhotoDescription"

	query, args, err := r.sb.Update(photosTable).
		Set("description", description).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": photoID, "place_id": placeID}).
		Suffix("RETURNING " + strings.Join(photoColumns, ", ")).
		ToSql()
	if err != nil {
		return models.Photo{}, fmt.Errorf("%s: %w", op, err)
	}

	photo, err := scanPhoto(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return models.Photo{}, mapError(op, err)
	}

	return photo, nil
}

type galleryTx struct {
	q  querier
	sb squirrel.StatementBuilderType
}

func (t *galleryTx) ListPhotos(ctx context.Context, placeID uuid.UUID) ([]models.Photo, error) {
	return listPhotos(ctx, t.q, t.sb, placeID)
}

// CreatePhoto вставляет фото и заполняет id и временные метки из базы
func (t *galleryTx) CreatePhoto(ctx context.Context, photo *models.Photo) error {
	const op = "repository.GalleryRepo.CreatePhoto"

	query, args, err := t.sb.Insert(photosTable).
		Columns(
			"place_id",
			"url",
			"storage_path",
			"is_principal",
			"sort_order",
			"description",
			"width",
			"height",
			"file_size",
			"mime_type",
		).
		Values(
			photo.PlaceID,
			photo.URL,
			photo.StoragePath,
			photo.IsPrincipal,
			photo.Order,
			photo.Description,
			photo.Width,
			photo.Height,
			photo.FileSize,
			photo.MimeType,
		).
		Suffix("RETURNING " + strings.Join(photoColumns, ", ")).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	created, err := scanPhoto(t.q.QueryRow(ctx, query, args...))
	if err != nil {
		return mapError(op, err)
	}

	*photo = created

	return nil
}

// UpdatePhoto перезаписывает содержимое и положение фото, id и created_at сохраняются
func (t *galleryTx) UpdatePhoto(ctx context.Context, photo *models.Photo) error {
	const op = "repository.GalleryRepo.UpdatePhoto"

	query, args, err := t.sb.Update(photosTable).
		Set("url", photo.URL).
		Set("storage_path", photo.StoragePath).
		Set("is_principal", photo.IsPrincipal).
		Set("sort_order", photo.Order).
		Set("description", photo.Description).
		Set("width", photo.Width).
		Set("height", photo.Height).
		Set("file_size", photo.FileSize).
		Set("mime_type", photo.MimeType).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": photo.ID}).
		Suffix("RETURNING " + strings.Join(photoColumns, ", ")).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	updated, err := scanPhoto(t.q.QueryRow(ctx, query, args...))
	if err != nil {
		return mapError(op, err)
	}

	*photo = updated

	return nil
}

func (t *galleryTx) DeletePhoto(ctx context.Context, photoID uuid.UUID) error {
	const op = "repository.GalleryRepo.DeletePhoto"

	query, args, err := t.sb.Delete(photosTable).
		Where(squirrel.Eq{"id": photoID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tag, err := t.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}

	return nil
}

func listPhotos(ctx context.Context, q querier, sb squirrel.StatementBuilderType, placeID uuid.UUID) ([]models.Photo, error) {
	const op = "repository.GalleryRepo.ListPhotos"

	query, args, err := sb.Select(photoColumns...).
		From(photosTable).
		Where(squirrel.Eq{"place_id": placeID}).
		OrderBy("is_principal DESC", "sort_order ASC", "created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	photos := make([]models.Photo, 0)
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		photos = append(photos, photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return photos, nil
}

func scanPhoto(row pgx.Row) (models.Photo, error) {
	var p models.Photo
	err := row.Scan(
		&p.ID,
		&p.PlaceID,
		&p.URL,
		&p.StoragePath,
		&p.IsPrincipal,
		&p.Order,
		&p.Description,
		&p.Width,
		&p.Height,
		&p.FileSize,
		&p.MimeType,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}
