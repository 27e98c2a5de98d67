package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	echoapi "github.com/trezcool/babillard/apps/api/echo"
	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/dashboard"
	"github.com/trezcool/babillard/core/event"
	"github.com/trezcool/babillard/core/notification"
	"github.com/trezcool/babillard/core/user"
	logsvc "github.com/trezcool/babillard/services/logger"
	"github.com/trezcool/babillard/services/metrics"
	"github.com/trezcool/babillard/storage/cache"
	"github.com/trezcool/babillard/storage/database"
	sqlxrepos "github.com/trezcool/babillard/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()
	gw := database.NewGateway(db, conf.Database.QueryTimeout)

	// set up repositories
	usrRepo := sqlxrepos.NewUserRepository(gw)
	notifRepo := sqlxrepos.NewNotificationRepository(gw)
	var eventRepo event.Repository = sqlxrepos.NewEventRepository(gw)
	if conf.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err = rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn(fmt.Sprintf("redis unreachable, events are read from the database: %v", err), err)
		}
		eventRepo = cache.NewEventRepository(eventRepo, rdb, conf.Redis.TTL)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	// set up services
	usrSvc := user.NewService(usrRepo, validate, translator)
	notifSvc := notification.NewService(gw, notifRepo, usrRepo, notification.Options{
		PageSize:        conf.Notifications.PageSize,
		MaxPageSize:     conf.Notifications.MaxPageSize,
		FanOutBatchSize: conf.Notifications.FanOutBatchSize,
	})
	eventSvc := event.NewService(eventRepo, notifSvc, validate, translator, logger)
	dashSvc := dashboard.NewService(usrSvc, eventSvc, notifSvc, dashboard.Options{
		UpcomingDays:  conf.Dashboard.UpcomingDays,
		UpcomingLimit: conf.Dashboard.UpcomingLimit,
	})

	// =========================================================================
	// Start Debug Service
	//
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - operation counters and Go runtime metrics.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer := metrics.NewPrometheusObserver(reg)
	http.Handle("/metrics", observer.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:         conf,
			Logger:       logger,
			EventSvc:     eventSvc,
			NotifSvc:     notifSvc,
			ReadState:    notification.NewReadState(notifRepo),
			DashboardSvc: dashSvc,
			Observer:     observer,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB, conf.Database.Engine); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
