package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"pinchat/backend/internal/api/handler"
	"pinchat/backend/internal/config"
	"pinchat/backend/internal/models"
	"pinchat/backend/internal/msgcrypto"
	"pinchat/backend/internal/storage"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const usage = `Usage: admin <command> [args]

Commands:
  add-user <user_id> [name]        create or update a user record
  status <user_id>                 print the stored lastSeen of a user
  touch <user_id>                  stamp lastSeen with the current time
  history <user_a> <user_b>        print the decrypted conversation
  token <user_id>                  mint a bearer token for development`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("PINCHAT_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	command := os.Args[1]
	ctx := context.Background()

	// token only needs the signing secret.
	if command == "token" {
		requireArgs(3, "admin token <user_id>")
		if cfg.Auth.JWTSecret == "" {
			log.Fatal("auth.jwt_secret is not set")
		}
		auth := handler.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		token, err := auth.IssueToken(os.Args[2])
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	storageSvc := storage.NewStorageService(db, nil, zap.NewNop()) // the lastSeen cache is a server concern

	switch command {
	case "add-user":
		requireArgs(3, "admin add-user <user_id> [name]")
		user := &models.User{ID: os.Args[2]}
		if len(os.Args) > 3 {
			user.Name = os.Args[3]
		}
		if err := storageSvc.UpsertUser(ctx, user); err != nil {
			log.Fatalf("Error saving user: %v", err)
		}
		fmt.Printf("User %s saved.\n", user.ID)
	case "status":
		requireArgs(3, "admin status <user_id>")
		if err := printStatus(ctx, storageSvc, os.Args[2]); err != nil {
			log.Fatalf("Error reading status: %v", err)
		}
	case "touch":
		requireArgs(3, "admin touch <user_id>")
		now := time.Now().UTC()
		if err := storageSvc.SetLastSeen(ctx, os.Args[2], &now); err != nil {
			log.Fatalf("Error stamping lastSeen: %v", err)
		}
		fmt.Printf("User %s lastSeen set to %s.\n", os.Args[2], now.Format(time.RFC3339))
	case "history":
		requireArgs(4, "admin history <user_a> <user_b>")
		codec, err := msgcrypto.NewCodec(cfg.Crypto.Secret)
		if err != nil {
			log.Fatalf("crypto.secret: %v", err)
		}
		if err := printHistory(ctx, storageSvc, codec, os.Args[2], os.Args[3]); err != nil {
			log.Fatalf("Error reading history: %v", err)
		}
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func requireArgs(n int, help string) {
	if len(os.Args) < n {
		fmt.Println("Usage:", help)
		os.Exit(1)
	}
}

func printStatus(ctx context.Context, s storage.Storage, userID string) error {
	lastSeen, err := s.GetLastSeen(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Printf("User %s is unknown.\n", userID)
		return nil
	}
	if err != nil {
		return err
	}
	if lastSeen == nil {
		fmt.Printf("User %s: online (no lastSeen stamp)\n", userID)
		return nil
	}
	fmt.Printf("User %s: last seen %s\n", userID, lastSeen.Format(time.RFC3339))
	return nil
}

func printHistory(ctx context.Context, s storage.Storage, codec *msgcrypto.Codec, userA, userB string) error {
	messages, err := s.ListMessagesBetween(ctx, userA, userB)
	if err != nil {
		return err
	}
	for _, m := range messages {
		text, err := codec.Decode(m.Content)
		if err != nil {
			text = "[unreadable]"
		}
		read := " "
		if m.Read {
			read = "r"
		}
		fmt.Printf("%s %s %s -> %s: %s\n", m.CreatedAt.Format(time.RFC3339), read, m.SenderID, m.ReceiverID, text)
	}
	fmt.Printf("%d message(s)\n", len(messages))
	return nil
}
