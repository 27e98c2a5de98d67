package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/notification"
	"github.com/trezcool/babillard/core/user"
	logsvc "github.com/trezcool/babillard/services/logger"
	"github.com/trezcool/babillard/storage/database"
	sqlxrepos "github.com/trezcool/babillard/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	gw := database.NewGateway(db, conf.Database.QueryTimeout)

	// set up services
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	usrRepo := sqlxrepos.NewUserRepository(gw)
	notifSvc := notification.NewService(gw, sqlxrepos.NewNotificationRepository(gw), usrRepo, notification.Options{
		FanOutBatchSize: conf.Notifications.FanOutBatchSize,
	})

	// start CLI
	cli := commandLine{
		db:       db.DB,
		conf:     conf,
		out:      os.Stdout,
		usrSvc:   user.NewService(usrRepo, validate, translator),
		notifSvc: notifSvc,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		os.Exit(1)
	}
}
