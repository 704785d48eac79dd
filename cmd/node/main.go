package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"espnow-arena/node/internal/app"
)

func main() {
	var configPath, envFile string
	flag.StringVar(&configPath, "config", "", "path to a JSON config file")
	flag.StringVar(&envFile, "env", ".env", "dotenv file with ARENA_* overrides")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.Options{ConfigPath: configPath, EnvFiles: []string{envFile}}); err != nil {
		log.Fatalf("%v", err)
	}
}
