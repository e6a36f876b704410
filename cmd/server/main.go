package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	backupserver "github.com/gavlu/dailyreps-backup-server"
	"github.com/gavlu/dailyreps-backup-server/apiServer"
	"github.com/gavlu/dailyreps-backup-server/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	conf, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("error loading configuration: %v", err)
	}

	log.WithFields(logrus.Fields{
		"listen":   conf.ListenAddr,
		"database": conf.DatabasePath,
	}).Info("starting DailyReps backup server")

	db, err := backupserver.New(conf, log)
	if err != nil {
		log.Fatalf("error opening database: %v", err)
	}

	server := apiServer.New(db, conf, apiServer.WithLogger(log))

	httpServer := &http.Server{
		Addr:    conf.ListenAddr,
		Handler: server,
	}

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs

		log.Info("shutting down")
		httpServer.Close()
		if err := db.Close(); err != nil {
			log.Errorf("error closing database: %v", err)
		}
		os.Exit(0)
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
