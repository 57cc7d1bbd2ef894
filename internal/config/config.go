package config

import (
	"os"

	handlerConfig "github.com/iurnickita/muralshop/internal/handler/config"
	loggerConfig "github.com/iurnickita/muralshop/internal/logger/config"
	serviceConfig "github.com/iurnickita/muralshop/internal/service/config"
	storeConfig "github.com/iurnickita/muralshop/internal/store/config"
)

type Config struct {
	Handler handlerConfig.Config
	Service serviceConfig.Config
	Store   storeConfig.Config
	Logger  loggerConfig.Config
}

func GetConfig() Config {
	return Config{
		Handler: handlerConfig.Config{
			ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		},
		Service: serviceConfig.Config{
			MuralAddr:           getEnv("MURAL_API_ADDR", "https://api-staging.muralpay.com/api"),
			MuralAPIKey:         os.Getenv("MURAL_API_KEY"),
			MuralTransferAPIKey: os.Getenv("MURAL_TRANSFER_API_KEY"),
			AccountID:           os.Getenv("MURAL_ACCOUNT_ID"),
			CounterpartyID:      os.Getenv("MURAL_COUNTERPARTY_ID"),
			PayoutMethodID:      os.Getenv("MURAL_PAYOUT_METHOD_ID"),
			DepositAddress:      os.Getenv("MURAL_DEPOSIT_ADDRESS"),
		},
		Store: storeConfig.Config{
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Logger: loggerConfig.Config{
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
