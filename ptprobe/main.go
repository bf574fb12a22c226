package main

import (
	"errors"
	"io/fs"
	"log"
	"os"

	dotenv "github.com/joho/godotenv"
)

// version is set at build time via -ldflags "-X main.version=1.2.3".
var version = "dev"

func main() {
	if err := dotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env file: %v", err)
	}

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
