package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourism_http_requests_total",
		Help: "Количество HTTP-запросов по методу, маршруту и статусу.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tourism_http_request_duration_seconds",
		Help:    "Длительность обработки HTTP-запросов.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Доменные счетчики
var (
	PhotosUploadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tourism_gallery_photos_uploaded_total",
		Help: "Количество успешно добавленных фото галерей.",
	})

	PrincipalChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourism_gallery_principal_changes_total",
		Help: "Смены главного фото по причине.",
	}, []string{"reason"})

	ExperiencesSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourism_experiences_submitted_total",
		Help: "Поданные впечатления по начальному состоянию.",
	}, []string{"state"})

	ExperienceDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourism_experience_decisions_total",
		Help: "Ручные решения модератора.",
	}, []string{"decision"})

	ModerationRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tourism_moderation_request_duration_seconds",
		Help:    "Длительность запросов к сервису модерации.",
		Buckets: prometheus.DefBuckets,
	})

	ModerationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tourism_moderation_failures_total",
		Help: "Неудачные обращения к сервису модерации.",
	})

	ModerationCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tourism_moderation_cache_hits_total",
		Help: "Попадания в кэш оценок модерации.",
	})

	ModerationCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tourism_moderation_cache_misses_total",
		Help: "Промахи кэша оценок модерации.",
	})

	ViewsFlushedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tourism_experience_views_flushed_total",
		Help: "Просмотры, перенесенные из буфера в базу.",
	})

	BlobsSweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourism_blobs_swept_total",
		Help: "Удаленные сиротские и незавершенные файлы.",
	}, []string{"kind"})
)
