package app

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	httpapp "tourism_media/internal/app/http"
	"tourism_media/internal/config"
	"tourism_media/internal/lib/logger/sl"
	"tourism_media/internal/repository"
	experienceservice "tourism_media/internal/services/experience_service"
	galleryservice "tourism_media/internal/services/gallery_service"
	maintenanceservice "tourism_media/internal/services/maintenance_service"
	"tourism_media/internal/services/moderation"
	placeservice "tourism_media/internal/services/place_service"
	storage "tourism_media/internal/storage/filestorage"
	"tourism_media/internal/storage/postgresql"
	redisapp "tourism_media/internal/storage/redis"
	httprouters "tourism_media/internal/transport/http"
)

type App struct {
	log         *slog.Logger
	HTTPServer  *httpapp.Server
	Maintenance *maintenanceservice.MaintenanceService
	storage     *postgresql.Storage
	redis       *redisapp.Client

	galleryEvents *repository.RedisGalleryEvents
	gallery       *galleryservice.GalleryService
	stopEvents    context.CancelFunc
	eventsWG      sync.WaitGroup
}

// New собирает приложение из конфига, при ошибке инициализации паникует
func New(ctx context.Context, log *slog.Logger, cfg *config.Config) *App {
	if err := postgresql.Migrate(cfg.DSN, log); err != nil {
		panic(err)
	}

	db, err := postgresql.New(ctx, cfg.DSN)
	if err != nil {
		panic(err)
	}

	redisClient := redisapp.NewClient(cfg.Redis.RedisAddr, cfg.Redis.RedisPassword, cfg.Redis.RedisDB)
	if err := redisClient.HealthCheck(ctx); err != nil {
		log.Warn("redis unavailable, views will be written through", sl.Err(err))
	}

	files, err := storage.NewLocalFileStorage(cfg.FileStorage.BaseDir, cfg.FileStorage.BaseURL)
	if err != nil {
		panic(err)
	}

	repo := repository.NewRepository(db.Pool())
	views := repository.NewRedisViewRepo(redisClient)
	galleryEvents := repository.NewRedisGalleryEvents(log, redisClient)

	scorer := moderation.NewCachedScorer(
		moderation.NewHTTPScorer(log, cfg.Moderation.Endpoint, cfg.Moderation.APIKey, cfg.Moderation.Timeout),
		cfg.Moderation.CacheSize,
		cfg.Moderation.CacheTTL,
	)

	uploadPolicy := cfg.FileStorage.UploadPolicy()

	placeService := placeservice.NewPlaceService(log, repo.Places, files)
	galleryService := galleryservice.NewGalleryService(
		log, repo.Gallery, files, uploadPolicy, placeService, galleryEvents, cfg.Gallery.CacheTTL)
	placeService.SetGalleryCache(galleryService)
	experienceService := experienceservice.NewExperienceService(
		log, repo.Experiences, views, scorer, files, cfg.Moderation.Policy(), uploadPolicy)

	maintenance := maintenanceservice.NewMaintenanceService(log, files, repo.Blobs, views, repo.Experiences,
		maintenanceservice.Intervals{
			OrphanTTL:     cfg.FileStorage.OrphanTTL,
			SweepInterval: cfg.FileStorage.SweepInterval,
			FlushInterval: cfg.Views.FlushInterval,
		})

	routers := httprouters.NewRouter(log, placeService, galleryService, experienceService,
		map[string]httprouters.HealthChecker{
			"postgres": db,
			"redis":    redisClient,
		})

	server := httpapp.New(log, httpapp.Options{
		Host:          cfg.HTTP.Host,
		Port:          cfg.HTTP.Port,
		JWTSecret:     cfg.Auth.JWTSecret,
		SessionSecret: cfg.Auth.SessionSecret,
		UploadsDir:    cfg.FileStorage.BaseDir,
		UploadsURL:    cfg.FileStorage.BaseURL,
		BodyLimit:     bodyLimit(cfg.FileStorage.MaxSize),
	}, routers)
	server.BuildRouters()

	return &App{
		log:         log,
		HTTPServer:  server,
		Maintenance: maintenance,
		storage:     db,
		redis:       redisClient,

		galleryEvents: galleryEvents,
		gallery:       galleryService,
	}
}

// Start запускает фоновые задачи: обслуживание и прием сбросов кэша галерей
func (a *App) Start(ctx context.Context) {
	a.Maintenance.Start(ctx)

	ctx, a.stopEvents = context.WithCancel(ctx)
	a.eventsWG.Add(1)
	go func() {
		defer a.eventsWG.Done()
		a.listenGalleryEvents(ctx)
	}()
}

// listenGalleryEvents переподключается к каналу, пока ctx не отменен
func (a *App) listenGalleryEvents(ctx context.Context) {
	const retryDelay = 5 * time.Second

	for {
		err := a.galleryEvents.Listen(ctx, a.gallery.Evict)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			a.log.Warn("gallery invalidation listener stopped, retrying", sl.Err(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

// Stop останавливает фоновые задачи и закрывает соединения, HTTP сервер останавливается отдельно
func (a *App) Stop(ctx context.Context) {
	if a.stopEvents != nil {
		a.stopEvents()
		a.eventsWG.Wait()
	}
	a.Maintenance.Stop(ctx)

	if err := a.redis.Close(); err != nil {
		a.log.Warn("failed to close redis", sl.Err(err))
	}
	a.storage.Stop()
}

// bodyLimit запас на пакетную загрузку и поля формы
func bodyLimit(maxFileSize int64) string {
	const (
		batchFiles = 10
		mb         = 1 << 20
	)
	limit := maxFileSize*batchFiles + mb
	return strconv.FormatInt((limit+mb-1)/mb, 10) + "M"
}
