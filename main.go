package main

import (
	"briefly/cmd"

	"github.com/joho/godotenv"

	_ "golang.org/x/crypto/x509roots/fallback" // We need this to make TLS work in scratch containers
)

func main() {
	// Load .env if present so the BRIEFLY_* env vars get picked up
	_ = godotenv.Load()

	cmd.Execute()
}
