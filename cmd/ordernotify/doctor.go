package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"ordernotify/internal/config"
	"ordernotify/internal/dispatch"
	"ordernotify/internal/store"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your ordernotify installation",
		Long: `Verifies that the configuration, database, delivery settings, and
endpoints are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("ordernotify Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'ordernotify init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Database writable
			if err := checkDatabase(cfg.Database.Path); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", cfg.Database.Path)
				passed++
			}

			// 4. Delivery settings present
			db, err := store.NewSQLiteStore(cfg.Database.Path, logger)
			if err == nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				values, lerr := db.List(ctx)
				cancel()
				db.Close()
				if lerr != nil {
					printWarn("Delivery settings", lerr.Error())
					warned++
				} else {
					for _, key := range dispatch.RequiredKeys {
						if values[key] == "" {
							printWarn("Setting: "+key, "not configured")
							warned++
						} else {
							printPass("Setting: "+key, "configured")
							passed++
						}
					}
					// 5. Messaging host reachable
					if base := values[dispatch.KeyWahaBaseURL]; base != "" {
						if err := checkEndpoint(base); err != nil {
							printWarn("Messaging endpoint", fmt.Sprintf("unreachable: %v", err))
							warned++
						} else {
							printPass("Messaging endpoint", base)
							passed++
						}
					}
				}
			}

			// 6. Server port
			if err := checkPort(cfg.Server.Port); err != nil {
				printWarn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("Server port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			// 7. Log file writable
			if cfg.General.LogFile != "" {
				dir := cfg.General.LogFile
				for i := len(dir) - 1; i >= 0; i-- {
					if dir[i] == '/' || dir[i] == '\\' {
						dir = dir[:i]
						break
					}
				}
				if err := os.MkdirAll(dir, 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running the gateway.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nThe gateway should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! The gateway is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	dir := dbPath
	for i := len(dir) - 1; i >= 0; i-- {
		if dir[i] == '/' || dir[i] == '\\' {
			dir = dir[:i]
			break
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

// checkEndpoint dials the host of a configured base URL.
func checkEndpoint(base string) error {
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host += ":443"
		default:
			host += ":80"
		}
	}
	conn, err := net.DialTimeout("tcp", host, 5*time.Second)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-22s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-22s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-22s %s\n", check, detail)
}
