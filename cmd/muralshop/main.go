package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/iurnickita/muralshop/internal/config"
	"github.com/iurnickita/muralshop/internal/handler"
	"github.com/iurnickita/muralshop/internal/logger"
	"github.com/iurnickita/muralshop/internal/service"
	"github.com/iurnickita/muralshop/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// .env необязателен, в проде конфигурация приходит из окружения
	_ = godotenv.Load()

	cfg := config.GetConfig()

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}

	service := service.NewService(cfg.Service, store, zaplog)

	return handler.Serve(cfg.Handler, service, zaplog)
}
