// ABOUTME: Operator CLI for the grimoire persistence core
// ABOUTME: Bootstraps the first admin, manages users, and inspects stats and audit history

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/2389/grimoire/internal/auth"
	"github.com/2389/grimoire/internal/config"
	"github.com/2389/grimoire/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
            _                 _
  __ _ _ __(_)_ __ ___   ___ (_)_ __ ___
 / _' | '__| | '_ ' _ \ / _ \| | '__/ _ \
| (_| | |  | | | | | | | (_) | | | |  __/
 \__, |_|  |_|_| |_| |_|\___/|_|_|  \___|
 |___/
`

// stdin is shared so buffered input survives across prompts.
var stdin = bufio.NewReader(os.Stdin)

// getConfigPath returns the path to the grimoire config file.
// Priority: GRIMOIRE_CONFIG env var > XDG_CONFIG_HOME/grimoire/config.yaml > ~/.config/grimoire/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("GRIMOIRE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "grimoire", "config.yaml")
}

// getDataPath returns the path to the grimoire data directory.
// Priority: XDG_DATA_HOME/grimoire > ~/.local/share/grimoire
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "grimoire")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx, args)
	case "create-user":
		err = runCreateUser(ctx, args)
	case "verify-user":
		err = runVerifyUser(ctx, args)
	case "purge-otps":
		err = runPurgeOTPs(ctx, args)
	case "stats":
		err = runStats(ctx)
	case "audit":
		err = runAudit(ctx, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	cyan.Print(banner)
	gray.Printf("    version: %s\n", version)
	fmt.Println()
	fmt.Println("Usage: grimoire-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  init                           Create a config file interactively")
	fmt.Println("  bootstrap --email ADDR         First-time setup: config file plus the first admin")
	fmt.Println("  create-user --email ADDR       Create a user (--name, --admin, --verified)")
	fmt.Println("  verify-user <email>            Mark a user's email as verified")
	fmt.Println("  purge-otps [--older-than DUR]  Delete consumed and expired codes (default 24h)")
	fmt.Println("  stats                          Show platform-wide counts")
	fmt.Println("  audit [--limit N]              Show recent audit entries (--action, --actor)")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  GRIMOIRE_CONFIG    Config file path (default: ~/.config/grimoire/config.yaml)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  grimoire-admin bootstrap --email admin@example.com --name \"Site Admin\"")
	fmt.Println("  grimoire-admin purge-otps --older-than 72h")
	fmt.Println("  grimoire-admin audit --action login_succeeded --limit 20")
	fmt.Println()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// loadConfigAndStore loads the config and opens the database it points at.
// The global logger is configured first so store logs come out formatted.
func loadConfigAndStore() (*config.Config, *store.SQLiteStore, error) {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	setupLogger(cfg.Logging)

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	return cfg, s, nil
}

// runBootstrap performs first-time setup:
// 1. Creates config file with random JWT secret (if not exists)
// 2. Creates database and the first admin account
//
// This is a one-command setup: grimoire-admin bootstrap --email you@example.com
func runBootstrap(ctx context.Context, args []string) error {
	// Parse args with explicit error handling
	// Supports both "--flag value" and "--flag=value" formats
	var email, fullName string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--email" || arg == "-e":
			if i+1 >= len(args) {
				return fmt.Errorf("--email requires a value")
			}
			email = args[i+1]
			i++
		case strings.HasPrefix(arg, "--email="):
			email = strings.TrimPrefix(arg, "--email=")
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--name requires a value")
			}
			fullName = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			fullName = strings.TrimPrefix(arg, "--name=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("--email flag is required")
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %s", email)
	}

	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "grimoire.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	// Check if config exists, create if not
	var cfg *config.Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		jwtSecret, err := generateSecret()
		if err != nil {
			return err
		}

		// Create config directory
		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		// Create data directory
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		// Write config file
		configContent := fmt.Sprintf(`# grimoire configuration
# Generated by grimoire-admin bootstrap

database:
  path: "%s"

auth:
  jwt_secret: "%s"
  token_ttl: "24h"
  otp_ttl: "10m"

smtp:
  host: ""
  port: 587
  from: "no-reply@localhost"
  app_name: "Grimoire"
  frontend_url: "http://localhost:3000"

logging:
  level: "info"
  format: "text"
`, dbPath, jwtSecret)

		if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		green.Printf("  ✓ Created config: %s\n", configPath)

		// Load the config we just created
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		// Config exists, load it
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	setupLogger(cfg.Logging)

	// Open the store directly
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	// Check if an admin already exists
	stats, err := s.GetPlatformStats(ctx)
	if err != nil {
		return fmt.Errorf("checking existing accounts: %w", err)
	}
	if stats.Admins > 0 {
		return fmt.Errorf("bootstrap already complete: %d admin account(s) exist", stats.Admins)
	}

	password, err := promptNewPassword()
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password, cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Verified:     true,
		Admin:        true,
	}
	if err := s.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("creating admin account: %w", err)
	}

	appendAudit(ctx, s, store.AuditUserRegistered, "user", user.ID, map[string]any{"bootstrap": true})

	green.Printf("  ✓ Created admin account: %s\n", email)

	// Print results
	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Admin Account")
	cyan.Println("  -------------")
	fmt.Printf("  ID:       %s\n", user.ID)
	fmt.Printf("  Email:    %s\n", user.Email)
	if user.FullName != "" {
		fmt.Printf("  Name:     %s\n", user.FullName)
	}
	fmt.Printf("  Verified: yes\n")
	fmt.Printf("  Admin:    yes\n")
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    grimoire-admin stats    # platform-wide counts")
	fmt.Println("    grimoire-admin audit    # recent security events")
	fmt.Println()

	return nil
}

// runCreateUser creates an account from the operator's terminal. The
// password is prompted, never taken from argv.
func runCreateUser(ctx context.Context, args []string) error {
	var email, fullName string
	var admin, verified bool

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--email" || arg == "-e":
			if i+1 >= len(args) {
				return fmt.Errorf("--email requires a value")
			}
			email = args[i+1]
			i++
		case strings.HasPrefix(arg, "--email="):
			email = strings.TrimPrefix(arg, "--email=")
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--name requires a value")
			}
			fullName = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			fullName = strings.TrimPrefix(arg, "--name=")
		case arg == "--admin":
			admin = true
		case arg == "--verified":
			verified = true
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("usage: create-user --email <addr> [--name <name>] [--admin] [--verified]")
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %s", email)
	}

	cfg, s, err := loadConfigAndStore()
	if err != nil {
		return err
	}
	defer s.Close()

	password, err := promptNewPassword()
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password, cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Verified:     verified,
		Admin:        admin,
	}
	if err := s.CreateUser(ctx, user); err != nil {
		return err
	}

	appendAudit(ctx, s, store.AuditUserRegistered, "user", user.ID, map[string]any{
		"admin":    admin,
		"verified": verified,
	})

	green := color.New(color.FgGreen)
	green.Printf("✓ Created user: %s\n", email)
	fmt.Printf("  ID:       %s\n", user.ID)
	fmt.Printf("  Admin:    %t\n", admin)
	fmt.Printf("  Verified: %t\n", verified)

	return nil
}

// runVerifyUser flips a user's verified flag, standing in for the email
// round-trip when the operator has confirmed the address out of band.
func runVerifyUser(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: verify-user <email>")
	}
	email := args[0]

	_, s, err := loadConfigAndStore()
	if err != nil {
		return err
	}
	defer s.Close()

	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	if user.Verified {
		green.Printf("✓ Already verified: %s\n", email)
		return nil
	}

	if err := s.MarkUserVerified(ctx, user.ID); err != nil {
		return err
	}

	appendAudit(ctx, s, store.AuditUserVerified, "user", user.ID, map[string]any{"operator": true})

	green.Printf("✓ Verified: %s\n", email)
	return nil
}

// runPurgeOTPs deletes consumed and expired codes older than the cutoff.
// Housekeeping only: correctness never depends on purged rows.
func runPurgeOTPs(ctx context.Context, args []string) error {
	olderThan := 24 * time.Hour

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--older-than":
			if i+1 >= len(args) {
				return fmt.Errorf("--older-than requires a value")
			}
			d, err := time.ParseDuration(args[i+1])
			if err != nil {
				return fmt.Errorf("parsing --older-than: %w", err)
			}
			olderThan = d
			i++
		case strings.HasPrefix(arg, "--older-than="):
			d, err := time.ParseDuration(strings.TrimPrefix(arg, "--older-than="))
			if err != nil {
				return fmt.Errorf("parsing --older-than: %w", err)
			}
			olderThan = d
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	if olderThan < 0 {
		return fmt.Errorf("--older-than must not be negative")
	}

	_, s, err := loadConfigAndStore()
	if err != nil {
		return err
	}
	defer s.Close()

	cutoff := time.Now().UTC().Add(-olderThan)
	count, err := s.PurgeOTPs(ctx, cutoff)
	if err != nil {
		return err
	}

	if count > 0 {
		appendAudit(ctx, s, store.AuditOTPPurged, "otp", "", map[string]any{
			"count":      count,
			"older_than": olderThan.String(),
		})
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Purged %d code(s) older than %s\n", count, olderThan)
	return nil
}

// runStats prints platform-wide aggregate counts.
func runStats(ctx context.Context) error {
	_, s, err := loadConfigAndStore()
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.GetPlatformStats(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)

	fmt.Println()
	cyan.Println("  Platform")
	cyan.Println("  --------")
	fmt.Printf("  Users:          %d (%d verified, %d admin)\n", stats.Users, stats.VerifiedUsers, stats.Admins)
	fmt.Printf("  Agents:         %d\n", stats.Agents)
	fmt.Printf("  Files:          %d (%d chunks)\n", stats.TotalFiles, stats.TotalChunks)
	fmt.Printf("  Conversations:  %d\n", stats.Conversations)
	fmt.Printf("  Messages:       %d\n", stats.Messages)
	fmt.Printf("  Pending OTPs:   %d\n", stats.PendingOTPs)
	fmt.Println()

	return nil
}

// runAudit lists recent audit entries, newest first.
func runAudit(ctx context.Context, args []string) error {
	var filter store.AuditFilter

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--limit" || arg == "-l":
			if i+1 >= len(args) {
				return fmt.Errorf("--limit requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("parsing --limit: %w", err)
			}
			filter.Limit = n
			i++
		case arg == "--action" || arg == "-a":
			if i+1 >= len(args) {
				return fmt.Errorf("--action requires a value")
			}
			action, err := parseAuditAction(args[i+1])
			if err != nil {
				return err
			}
			filter.Action = &action
			i++
		case arg == "--actor":
			if i+1 >= len(args) {
				return fmt.Errorf("--actor requires a value")
			}
			actor := args[i+1]
			filter.ActorID = &actor
			i++
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	_, s, err := loadConfigAndStore()
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.ListAuditLog(ctx, filter)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)

	fmt.Println()
	cyan.Println("  Audit Log")
	cyan.Println("  ---------")

	if len(entries) == 0 {
		fmt.Println("  (no entries)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tACTION\tACTOR\tTARGET\tDETAIL")
	fmt.Fprintln(w, "  ----\t------\t-----\t------\t------")

	for _, e := range entries {
		actor := "-"
		if e.ActorID != nil {
			actor = truncate(*e.ActorID, 12)
		}
		target := truncate(e.TargetType+"/"+e.TargetID, 34)
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("Jan 02 15:04:05"),
			e.Action,
			actor,
			target,
			truncate(formatDetail(e.Detail), 40),
		)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func runInit() error {
	fmt.Println("grimoire configuration setup")
	fmt.Println("============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "grimoire.db")

	// Output filename
	outputFile := prompt(stdin, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(stdin, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(stdin, "SQLite database path", defaultDbPath)

	// Auth
	fmt.Println("\n--- Auth Configuration ---")
	tokenTTL := prompt(stdin, "Session token TTL", "24h")
	otpTTL := prompt(stdin, "One-time code TTL", "10m")

	jwtSecret, err := generateSecret()
	if err != nil {
		return err
	}
	fmt.Println("Generated a random jwt_secret.")

	// SMTP
	fmt.Println("\n--- SMTP Configuration ---")
	smtpHost := prompt(stdin, "SMTP host (empty logs emails instead of sending)", "")
	smtpPort := prompt(stdin, "SMTP port", "587")
	smtpFrom := prompt(stdin, "From address", "no-reply@localhost")
	appName := prompt(stdin, "Application name", "Grimoire")
	frontendURL := prompt(stdin, "Frontend URL (for links in emails)", "http://localhost:3000")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(stdin, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(stdin, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# grimoire configuration\n")
	cfg.WriteString("# Generated by grimoire-admin init\n\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString(fmt.Sprintf("  token_ttl: \"%s\"\n", tokenTTL))
	cfg.WriteString(fmt.Sprintf("  otp_ttl: \"%s\"\n", otpTTL))
	cfg.WriteString("\n")

	cfg.WriteString("smtp:\n")
	cfg.WriteString(fmt.Sprintf("  host: \"%s\"\n", smtpHost))
	cfg.WriteString(fmt.Sprintf("  port: %s\n", smtpPort))
	cfg.WriteString(fmt.Sprintf("  from: \"%s\"\n", smtpFrom))
	cfg.WriteString(fmt.Sprintf("  app_name: \"%s\"\n", appName))
	cfg.WriteString(fmt.Sprintf("  frontend_url: \"%s\"\n", frontendURL))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The file carries the JWT secret, keep it private
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// Open the store once so the schema exists before anything serves traffic
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	s.Close()

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Database initialized: %s\n", dbPath)
	fmt.Println("\nNext:")
	fmt.Printf("  grimoire-admin bootstrap --email you@example.com\n")

	return nil
}

// appendAudit records an operator action. ActorID stays nil: there is no
// logged-in principal behind the terminal.
func appendAudit(ctx context.Context, s *store.SQLiteStore, action store.AuditAction, targetType, targetID string, detail map[string]any) {
	entry := &store.AuditEntry{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	}
	if err := s.AppendAuditLog(ctx, entry); err != nil {
		slog.Error("failed to append audit entry", "action", string(action), "error", err)
	}
}

// parseAuditAction validates an action name against the known set.
func parseAuditAction(name string) (store.AuditAction, error) {
	for _, a := range store.ValidAuditActions {
		if string(a) == name {
			return a, nil
		}
	}

	valid := make([]string, len(store.ValidAuditActions))
	for i, a := range store.ValidAuditActions {
		valid[i] = string(a)
	}
	return "", fmt.Errorf("unknown action %q (valid: %s)", name, strings.Join(valid, ", "))
}

// promptNewPassword reads a password twice and requires the entries to match.
func promptNewPassword() (string, error) {
	password, err := promptPassword("  Password: ")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}

	confirm, err := promptPassword("  Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", fmt.Errorf("passwords do not match")
	}

	return password, nil
}

// promptPassword reads a password without echo when stdin is a terminal,
// falling back to a plain line read when it is not (pipes, CI).
func promptPassword(label string) (string, error) {
	fmt.Print(label)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}

	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

// generateSecret returns a random 256-bit secret, base64 encoded.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// formatDetail renders an audit detail map as stable k=v pairs.
func formatDetail(detail map[string]any) string {
	if len(detail) == 0 {
		return "-"
	}

	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, detail[k])
	}
	return strings.Join(parts, " ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
