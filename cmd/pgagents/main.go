package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/pgagents/pgagents/internal/cli"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	code := cli.Execute(context.Background(), os.Args[1:], cli.Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	os.Exit(code)
}
