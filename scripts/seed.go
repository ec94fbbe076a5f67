//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/magicdevops/cloudleakage/internal/accounts"
	"github.com/magicdevops/cloudleakage/internal/database"
	"github.com/magicdevops/cloudleakage/internal/database/models"
	"github.com/magicdevops/cloudleakage/pkg/config"
	"github.com/magicdevops/cloudleakage/pkg/crypto"
	"github.com/magicdevops/cloudleakage/pkg/util"
)

// Registers a first AWS account from SEED_* environment variables so the
// dashboard has something to show after a fresh deploy.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		log.Fatalf("failed to initialize encryptor: %v", err)
	}

	accessKeyID := os.Getenv("SEED_ACCESS_KEY_ID")
	secretAccessKey := os.Getenv("SEED_SECRET_ACCESS_KEY")
	displayName := os.Getenv("SEED_DISPLAY_NAME")

	if accessKeyID == "" || secretAccessKey == "" {
		log.Fatal("SEED_ACCESS_KEY_ID and SEED_SECRET_ACCESS_KEY are required")
	}
	if displayName == "" {
		displayName = "Default Account"
	}

	accountService := accounts.NewService(db, encryptor, logger)

	account, err := accountService.Create(context.Background(), accounts.CreateInput{
		DisplayName:     displayName,
		AccessType:      models.AccessTypeKeypair,
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		Region:          os.Getenv("SEED_REGION"),
	})
	if err != nil {
		log.Fatalf("failed to create account: %v", err)
	}

	fmt.Printf("Account created successfully!\n")
	fmt.Printf("ID: %s\n", account.ID)
	fmt.Printf("Name: %s\n", account.DisplayName)
}
