package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/yungbote/intellimix-backend/internal/app"
	"github.com/yungbote/intellimix-backend/internal/platform/shutdown"
)

func main() {
	// Production injects env through the deployment; .env is for local runs.
	if mode := strings.ToLower(os.Getenv("LOG_MODE")); mode != "production" && mode != "prod" {
		_ = godotenv.Load()
	}

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		a.Log.Error("server exited", "error", err)
		a.Close()
		os.Exit(1)
	}
}
