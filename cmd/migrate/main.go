package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"techblog/internal/repository"
)

const usage = "Usage: migrate [up|drop]"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "up":
		if err := run(ctx, conn, repository.CreateStatements, "Applied"); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ visitor_stats schema is up to date")

	case "drop":
		if err := run(ctx, conn, repository.DropStatements, "Dropped"); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ visitor_stats schema dropped")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

// run executes statements in one transaction so a failed step leaves nothing behind
func run(ctx context.Context, conn *pgx.Conn, statements []string, verb string) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, query := range statements {
		if _, err := tx.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  %s: %s\n", verb, firstLine(query))
	}

	return tx.Commit(ctx)
}

func firstLine(query string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(query), "\n")
	return strings.TrimSuffix(strings.TrimSpace(line), "(")
}
