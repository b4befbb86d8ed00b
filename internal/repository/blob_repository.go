package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4/pgxpool"
)

// BlobRepo отвечает на вопрос, ссылаются ли метаданные на файл
type BlobRepo struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

func NewBlobRepo(db *pgxpool.Pool) *BlobRepo {
	return &BlobRepo{
		db: db,
		sb: statementBuilder(),
	}
}

// ReferencedPaths возвращает подмножество paths, на которые есть ссылки из фото или заявок
func (r *BlobRepo) ReferencedPaths(ctx context.Context, paths []string) (map[string]bool, error) {
	const op = "repository.BlobRepo.ReferencedPaths"

	referenced := make(map[string]bool, len(paths))
	if len(paths) == 0 {
		return referenced, nil
	}

	// нумерация плейсхолдеров выполняется один раз для всего UNION
	photos := squirrel.Select("storage_path").From(photosTable).Where(squirrel.Eq{"storage_path": paths})
	experiences := r.sb.Select("storage_path").From(experiencesTable).Where(squirrel.Eq{"storage_path": paths})

	photosSQL, photosArgs, err := photos.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	query, args, err := experiences.
		Prefix(photosSQL+" UNION", photosArgs...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		referenced[p] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return referenced, nil
}
