package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tourism_media/internal/domain/models"
	"tourism_media/internal/lib/logger/sl"
	"tourism_media/internal/metrics"
	"tourism_media/internal/repository"
	rootstorage "tourism_media/internal/storage"
	storage "tourism_media/internal/storage/filestorage"
)

const (
	referenceBatch = 500
	drainBatch     = 500
)

// ViewSink принимает слитые из буфера просмотры
type ViewSink interface {
	AddViews(ctx context.Context, id uuid.UUID, n int64) error
}

type Intervals struct {
	OrphanTTL     time.Duration
	SweepInterval time.Duration
	FlushInterval time.Duration
}

type SweepReport struct {
	Staged  int
	Orphans int
}

// MaintenanceService фоновые задачи: удаление потерянных файлов и сброс счетчиков просмотров
type MaintenanceService struct {
	log       *slog.Logger
	files     storage.Sweepable
	refs      repository.BlobReferences
	views     repository.ViewBuffer
	sink      ViewSink
	intervals Intervals
	now       func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewMaintenanceService(
	log *slog.Logger,
	files storage.Sweepable,
	refs repository.BlobReferences,
	views repository.ViewBuffer,
	sink ViewSink,
	intervals Intervals,
) *MaintenanceService {
	return &MaintenanceService{
		log:       log,
		files:     files,
		refs:      refs,
		views:     views,
		sink:      sink,
		intervals: intervals,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
}

// Start запускает периодические задачи, нулевой интервал отключает задачу
func (s *MaintenanceService) Start(ctx context.Context) {
	if s.intervals.SweepInterval > 0 {
		s.loop(ctx, "sweep", s.intervals.SweepInterval, func(ctx context.Context) error {
			_, err := s.SweepOnce(ctx)
			return err
		})
	}
	if s.views != nil && s.intervals.FlushInterval > 0 {
		s.loop(ctx, "flush_views", s.intervals.FlushInterval, func(ctx context.Context) error {
			_, err := s.FlushViewsOnce(ctx)
			return err
		})
	}
}

// Stop останавливает задачи и последний раз сбрасывает просмотры
func (s *MaintenanceService) Stop(ctx context.Context) {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()

	if s.views != nil {
		if _, err := s.FlushViewsOnce(ctx); err != nil {
			s.log.Warn("final views flush failed", sl.Err(err))
		}
	}
}

func (s *MaintenanceService) loop(ctx context.Context, name string, every time.Duration, task func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				if err := task(ctx); err != nil {
					s.log.Warn("maintenance task failed", slog.String("task", name), sl.Err(err))
				}
			}
		}
	}()
}

// SweepOnce удаляет незавершенные записи и файлы старше orphan_ttl, на которые нет ссылок в базе
func (s *MaintenanceService) SweepOnce(ctx context.Context) (SweepReport, error) {
	const op = "service.MaintenanceService.SweepOnce"
	log := s.log.With(slog.String("op", op))

	var report SweepReport
	before := s.now().Add(-s.intervals.OrphanTTL)

	staged, err := s.files.CleanStaging(ctx, before)
	report.Staged = staged
	metrics.BlobsSweptTotal.WithLabelValues("staging").Add(float64(staged))
	if err != nil {
		return report, fmt.Errorf("%s: clean staging: %w", op, err)
	}

	candidates, err := s.files.ListOlderThan(ctx, before)
	if err != nil {
		return report, fmt.Errorf("%s: list blobs: %w", op, err)
	}

	for start := 0; start < len(candidates); start += referenceBatch {
		end := min(start+referenceBatch, len(candidates))
		chunk := candidates[start:end]

		referenced, err := s.refs.ReferencedPaths(ctx, chunk)
		if err != nil {
			return report, fmt.Errorf("%s: referenced paths: %w", op, err)
		}

		for _, p := range chunk {
			if referenced[p] {
				continue
			}
			if err := s.files.Delete(ctx, p); err != nil && !errors.Is(err, rootstorage.ErrFileNotFound) {
				log.Warn("failed to delete orphan blob", slog.String("path", p), sl.Err(err))
				continue
			}
			report.Orphans++
		}
	}

	metrics.BlobsSweptTotal.WithLabelValues("orphan").Add(float64(report.Orphans))

	if report.Staged > 0 || report.Orphans > 0 {
		log.Info("blobs swept", slog.Int("staged", report.Staged), slog.Int("orphans", report.Orphans))
	}

	return report, nil
}

// FlushViewsOnce переносит накопленные просмотры в базу.
// Не записанные значения возвращаются в буфер, так что просмотр может быть учтен повторно, но не потерян.
func (s *MaintenanceService) FlushViewsOnce(ctx context.Context) (int64, error) {
	const op = "service.MaintenanceService.FlushViewsOnce"
	log := s.log.With(slog.String("op", op))

	var (
		flushed  int64
		firstErr error
	)

	for {
		counts, drainErr := s.views.Drain(ctx, drainBatch)

		for id, n := range counts {
			err := s.sink.AddViews(ctx, id, n)
			if err == nil {
				flushed += n
				continue
			}
			if errors.Is(err, models.ErrNotFound) {
				log.Debug("views dropped for deleted experience", slog.String("experience_id", id.String()))
				continue
			}

			if firstErr == nil {
				firstErr = err
			}
			if rerr := s.views.Restore(context.WithoutCancel(ctx), id, n); rerr != nil {
				log.Error("failed to restore views", slog.String("experience_id", id.String()), slog.Int64("views", n), sl.Err(rerr))
			}
		}

		if drainErr != nil {
			firstErr = drainErr
			break
		}
		if firstErr != nil || len(counts) < drainBatch {
			break
		}
	}

	metrics.ViewsFlushedTotal.Add(float64(flushed))

	if firstErr != nil {
		return flushed, fmt.Errorf("%s: %w", op, firstErr)
	}

	return flushed, nil
}
