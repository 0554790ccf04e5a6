package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/bugspotter/demo-platform/internal/adapter/natskv"
	"github.com/bugspotter/demo-platform/internal/config"
	"github.com/bugspotter/demo-platform/internal/service"
)

// runAdmin dispatches admin subcommands (create-admin, reset-password).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-admin":
		return runAdminCreate(args[1:])
	case "reset-password":
		return runAdminResetPassword(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: demoplatform admin <command> [options]

Commands:
  create-admin     Create an admin account
  reset-password   Reset an admin's password
  help             Show this help message

Examples:
  demoplatform admin create-admin --email admin@example.com
  demoplatform admin reset-password --email admin@example.com
`)
}

func loadAdminDeps() (*service.AuthService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	kv, err := natskv.Connect(context.Background(), cfg.NATS.URL, cfg.Session.Lifetime)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to store: %w", err)
	}

	authSvc := service.NewAuthService(kv, cfg.Auth.TokenTTL, cfg.Auth.TOTPIssuer)
	return authSvc, kv.Close, nil
}

func runAdminCreate(args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	email := fs.String("email", "", "admin email address (required)")
	password := fs.String("password", "", "password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("--email is required")
	}

	pass, err := passwordOrPrompt(*password)
	if err != nil {
		return err
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := authSvc.CreateAdmin(context.Background(), *email, pass); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Admin created: %s\n", *email)
	return nil
}

func runAdminResetPassword(args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	email := fs.String("email", "", "admin email address (required)")
	password := fs.String("password", "", "new password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("--email is required")
	}

	pass, err := passwordOrPrompt(*password)
	if err != nil {
		return err
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := authSvc.SetPassword(context.Background(), *email, pass); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Password reset successfully for %s\n", *email)
	return nil
}

func passwordOrPrompt(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	pass, err := promptPassword("Password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if pass != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	return pass, nil
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
