package http

import (
	"expvar"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/labstack/echo/v4"
	echo_middleware "github.com/labstack/echo/v4/middleware"
	"github.com/pot-code/progress-sync/internal/domain"
	infra "github.com/pot-code/progress-sync/internal/infrastructure"
	"github.com/pot-code/progress-sync/internal/infrastructure/driver"
	"github.com/pot-code/progress-sync/internal/infrastructure/validate"
	"github.com/pot-code/progress-sync/internal/interfaces/http/middleware"
	"github.com/pot-code/progress-sync/internal/progress"
	"github.com/pot-code/progress-sync/internal/quiz"
	"go.elastic.co/apm/module/apmechov4"
	"go.uber.org/zap"
)

// Serve create http transport server
func Serve(
	kv driver.KeyValueDB,
	option *infra.AppConfig,
	ProgressUseCase domain.ProgressUseCase,
	AttemptStore *quiz.AttemptStore,
	feed *progress.Feed,
	logger *zap.Logger,
) {
	app := echo.New()
	validator := validate.NewValidator()

	registerLivenessProbe(app, kv)
	if option.Env == infra.EnvDevelopment {
		registerProfileEndpoints(app)
	}
	app.Use(middleware.Logging(logger, &middleware.LoggingConfig{
		Skipper: func(e echo.Context) bool {
			return strings.HasPrefix(e.Request().RequestURI, "/healthz")
		},
	}))
	app.Use(middleware.ErrorHandling(
		&middleware.ErrorHandlingOption{
			Handler: func(c echo.Context, err error) {
				traceID := c.Response().Header().Get(echo.HeaderXRequestID)
				c.JSON(http.StatusInternalServerError,
					NewRESTStandardError(http.StatusInternalServerError, err.Error()).SetTraceID(traceID),
				)
				logger.Error(err.Error(), zap.String("trace.id", traceID))
			},
			Logger: logger,
		},
	))
	app.Use(echo_middleware.Secure())
	if option.DevOP.APM {
		app.Use(apmechov4.Middleware())
	}
	app.Use(echo_middleware.CORS())
	app.Use(middleware.AbortRequest(&middleware.AbortRequestOption{
		Timeout: option.RequestTimeout,
	}))
	app.Use(middleware.NoRouteMatched())

	ProgressHandler := NewProgressHandler(ProgressUseCase, validator)
	QuizAttemptHandler := NewQuizAttemptHandler(AttemptStore, validator)

	v1 := app.Group("/api/v1", echo_middleware.RequestID(), middleware.SetTraceLogger(logger))
	StudentGroup := v1.Group("/student")
	AttemptGroup := v1.Group("/quiz-attempt")

	StudentGroup.POST("/:sid/progress/:cid/open", ProgressHandler.HandleOpenCourse)
	StudentGroup.GET("/:sid/progress/:cid", ProgressHandler.HandleGetProgress)
	StudentGroup.POST("/:sid/progress/:cid/lessons", ProgressHandler.HandleCompleteLesson)
	StudentGroup.PUT("/:sid/progress/:cid/current", ProgressHandler.HandleMoveToLesson)
	StudentGroup.POST("/:sid/progress/:cid/quiz", ProgressHandler.HandleSubmitQuiz)
	StudentGroup.DELETE("/:sid/progress/:cid", ProgressHandler.HandleRestart)
	StudentGroup.POST("/:sid/progress/:cid/close", ProgressHandler.HandleCloseCourse)
	StudentGroup.POST("/:sid/flush", ProgressHandler.HandleFlush)

	AttemptGroup.GET("/:cid", QuizAttemptHandler.HandleGetAttempt)
	AttemptGroup.PUT("/:cid", QuizAttemptHandler.HandleSaveAttempt)
	AttemptGroup.DELETE("/:cid", QuizAttemptHandler.HandleClearAttempt)

	v1.GET("/ws/progress", NewProgressFeedHandler(feed))

	printRoutes(app, logger)
	if err := app.Start(fmt.Sprintf("%s:%d", option.Host, option.Port)); err != nil {
		log.Fatal(err)
	}
}

func printRoutes(app *echo.Echo, logger *zap.Logger) {
	for _, route := range app.Routes() {
		if !strings.HasPrefix(route.Name, "github.com/labstack/echo") {
			name := route.Name
			trimIndex := strings.LastIndexByte(name, '/')
			logger.Debug("Registered route", zap.String("method", route.Method), zap.String("path", route.Path), zap.String("name", string(name[trimIndex+1:])))
		}
	}
}

func registerLivenessProbe(app *echo.Echo, kv driver.KeyValueDB) {
	app.GET("/healthz", func(c echo.Context) error {
		if kv.Ping(c.Request().Context()) == nil {
			return c.NoContent(http.StatusOK)
		}
		return c.NoContent(http.StatusServiceUnavailable)
	})
}

func registerProfileEndpoints(app *echo.Echo) {
	expvarHandler := expvar.Handler()
	app.GET("/debug/vars", func(c echo.Context) error {
		expvarHandler.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/", func(c echo.Context) error {
		pprof.Index(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/:name", func(c echo.Context) error {
		switch c.Param("name") {
		case "cmdline":
			pprof.Cmdline(c.Response().Writer, c.Request())
		case "profile":
			pprof.Profile(c.Response().Writer, c.Request())
		case "symbol":
			pprof.Symbol(c.Response().Writer, c.Request())
		case "trace":
			pprof.Trace(c.Response().Writer, c.Request())
		default:
			pprof.Handler(c.Param("name")).ServeHTTP(c.Response().Writer, c.Request())
		}
		return nil
	})
}
