package main

import (
	"os"

	"github.com/yungbote/intellimix-backend/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
