package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"agilekit/internal/bootstrap"
)

func main() {
	envFile := flag.String("env-file", ".env", "path of the env file loaded before reading environment variables")
	migrateOnly := flag.Bool("migrate-only", false, "run database migrations and exit")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*envFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	if *migrateOnly {
		bootstrap.NewLogger(cfg)
		db, err := bootstrap.OpenDatabase(cfg)
		if err != nil {
			logrus.Fatalf("Migration failed: %v", err)
		}
		if db != nil {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		logrus.Info("Migration finished")
		return
	}

	// 初始化并运行 App
	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize application: %v", err)
	}
	if err := app.Start(); err != nil {
		logrus.Fatalf("Failed to start application: %v", err)
	}

	// 设置优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutdown signal received...")

	app.Shutdown()
	os.Exit(0)
}
