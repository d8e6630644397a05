package main

import (
	"context"
	"log"

	infra "github.com/pot-code/progress-sync/internal/infrastructure"
	"github.com/pot-code/progress-sync/internal/infrastructure/driver"
	"github.com/pot-code/progress-sync/internal/infrastructure/logging"
	"github.com/pot-code/progress-sync/internal/infrastructure/uuid"
	ihttp "github.com/pot-code/progress-sync/internal/interfaces/http"
	"github.com/pot-code/progress-sync/internal/progress"
	"github.com/pot-code/progress-sync/internal/quiz"
	"github.com/pot-code/progress-sync/internal/remote"
	"github.com/pot-code/progress-sync/internal/syncd"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	logger = logger.With(
		zap.String("service.id", option.AppID),
	)
	defer logger.Sync()

	kv, err := newCacheDriver(option)
	if err != nil {
		log.Fatalf("Failed to open local cache: %s\n", err)
	}
	defer kv.Close()
	logger.Debug("Opened local cache", zap.String("cache.driver", option.Cache.Driver))

	deviceID := option.Sync.DeviceID
	if deviceID == "" {
		generator := uuid.NewNanoIDGenerator(option.Sync.IDLength)
		if deviceID, err = generator.Generate(); err != nil {
			log.Fatalf("Failed to generate device ID: %s\n", err)
		}
	}

	SyncClient := remote.NewClient(option.Backend.BaseURL, deviceID, option.Backend.Timeout, logger)
	ProgressStore := progress.NewKVProgressStore(kv, logger)
	AttemptStore := quiz.NewAttemptStore(kv, logger)
	ProgressFeed := progress.NewFeed()
	ProgressUseCase := progress.NewUseCase(ProgressStore, SyncClient, AttemptStore, ProgressFeed,
		option.Sync.QuietPeriod, logger)

	if option.Sync.FlushInterval > 0 {
		flusher, err := syncd.NewFlusher(option.Sync.FlushInterval, func() error {
			return ProgressUseCase.FlushAll(context.Background())
		}, logger)
		if err != nil {
			log.Fatalf("Failed to schedule background flush: %s\n", err)
		}
		flusher.Start()
		defer flusher.Stop()
	}

	ihttp.Serve(kv, option, ProgressUseCase, AttemptStore, ProgressFeed, logger)
}

func newCacheDriver(option *infra.AppConfig) (driver.KeyValueDB, error) {
	switch option.Cache.Driver {
	case "redis":
		return driver.NewRedisClient(option.Cache.Host, option.Cache.Port, option.Cache.Password), nil
	case "sqlite":
		return driver.NewSqliteClient(option.Cache.Path)
	default:
		return driver.NewMemoryClient(), nil
	}
}
