//cmd/seeder/main.go
package main

import (
    "flag"
    "os"

    "github.com/joho/godotenv"

    "github.com/unclebandit/mailqueue-backend/internal/config"
    "github.com/unclebandit/mailqueue-backend/internal/db"
    "github.com/unclebandit/mailqueue-backend/internal/logger"
)

func main() {
    _ = godotenv.Load()
    cfg := config.Parse()
    log := logger.New(cfg.LogLevel, cfg.LogPretty)

    dir := flag.String("dir", "seed", "directory holding the seed SQL files")
    flag.Parse()

    conn, err := db.Open(cfg.DatabaseURL, log)
    if err != nil {
        log.Fatal().Err(err).Msg("connect")
    }
    defer conn.Close()

    seedFiles := []string{
        "subscribers.sql",
        "templates.sql",
    }

    for _, name := range seedFiles {
        file := *dir + "/" + name
        content, err := os.ReadFile(file)
        if err != nil {
            log.Fatal().Err(err).Str("file", file).Msg("failed to read seed file")
        }

        if _, err := conn.Exec(string(content)); err != nil {
            log.Fatal().Err(err).Str("file", file).Msg("failed to execute seed file")
        }
        log.Info().Str("file", file).Msg("Seeded")
    }

    log.Info().Msg("Database seeding completed successfully!")
}
