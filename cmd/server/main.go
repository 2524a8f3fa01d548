package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/abebabank/abeba-card-system/cardsystem"
	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using process env")
	}

	config := cardsystem.DefaultConfig()
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		config.HTTPAddr = addr
	}
	if addr := os.Getenv("ISO8583_ADDR"); addr != "" {
		config.ISO8583Addr = addr
	}

	app := cardsystem.NewApp(logger, config)
	if err := app.Start(); err != nil {
		logger.Error("starting app", "err", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	app.Shutdown()
}
