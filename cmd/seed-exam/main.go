package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/examtrust/examtrust-backend/internal/config"
	"github.com/examtrust/examtrust-backend/internal/database"
	"github.com/examtrust/examtrust-backend/internal/logger"
	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/examtrust/examtrust-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Seed Exam ===")

	fmt.Print("Title: ")
	title, _ := reader.ReadString('\n')
	title = strings.TrimSpace(title)
	if title == "" {
		fmt.Println("Error: Title is required")
		return
	}

	fmt.Print("Subject: ")
	subject, _ := reader.ReadString('\n')
	subject = strings.TrimSpace(subject)
	if subject == "" {
		fmt.Println("Error: Subject is required")
		return
	}

	fmt.Print("Duration (minutes): ")
	durationStr, _ := reader.ReadString('\n')
	duration, err := strconv.Atoi(strings.TrimSpace(durationStr))
	if err != nil || duration <= 0 {
		fmt.Println("Error: Duration must be a positive number")
		return
	}

	fmt.Print("Answer key JSON file (blank for none): ")
	keyPath, _ := reader.ReadString('\n')
	keyPath = strings.TrimSpace(keyPath)

	answerKey := model.AnswerKey{}
	if keyPath != "" {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			fmt.Printf("Error: Cannot read %s: %v\n", keyPath, err)
			return
		}
		if err := json.Unmarshal(data, &answerKey); err != nil {
			fmt.Printf("Error: Invalid answer key JSON: %v\n", err)
			return
		}
	}

	fmt.Print("Exam password (blank for none): ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	fmt.Println()

	passwordHash := ""
	if len(bytePassword) > 0 {
		hashed, err := bcrypt.GenerateFromPassword(bytePassword, cfg.BcryptCost)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash password")
		}
		passwordHash = string(hashed)
	}

	latePolicy := promptChoice(reader, "Late policy (clamp/reject) [clamp]: ", "clamp", "reject")
	grading := promptChoice(reader, "Grading (auto/manual) [auto]: ", "auto", "manual")
	leaderboard := promptYesNo(reader, "Public leaderboard? (y/N): ")
	allowResume := !promptNo(reader, "Allow resume of active attempts? (Y/n): ")

	// ─── Insert ────────────────────────────────────────────────────────
	exam := &model.Exam{
		Title:             title,
		Subject:           subject,
		DurationMinutes:   duration,
		PasswordHash:      passwordHash,
		AnswerKey:         answerKey,
		LeaderboardPublic: leaderboard,
		AllowResume:       allowResume,
		LatePolicy:        model.LatePolicy(latePolicy),
		Grading:           model.GradingMode(grading),
	}

	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to insert exam")
	}

	fmt.Printf("Created exam %s\n", exam.ID)
}

func promptChoice(reader *bufio.Reader, prompt, def, alt string) string {
	fmt.Print(prompt)
	raw, _ := reader.ReadString('\n')
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == alt {
		return alt
	}
	return def
}

func promptYesNo(reader *bufio.Reader, prompt string) bool {
	fmt.Print(prompt)
	raw, _ := reader.ReadString('\n')
	raw = strings.ToLower(strings.TrimSpace(raw))
	return raw == "y" || raw == "yes"
}

func promptNo(reader *bufio.Reader, prompt string) bool {
	fmt.Print(prompt)
	raw, _ := reader.ReadString('\n')
	raw = strings.ToLower(strings.TrimSpace(raw))
	return raw == "n" || raw == "no"
}
