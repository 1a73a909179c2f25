package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ispacehq/ivault/internal/config"
	"github.com/ispacehq/ivault/internal/logger"
	"github.com/ispacehq/ivault/pkg/audit"
	"github.com/ispacehq/ivault/pkg/filevault"
	"github.com/ispacehq/ivault/pkg/keystore"
	"github.com/ispacehq/ivault/pkg/session"
	"github.com/ispacehq/ivault/pkg/settings"
	"github.com/ispacehq/ivault/pkg/vault"
)

// app holds the wired vault stack for the current invocation.
type appContext struct {
	cfg      config.Config
	log      *logger.Logger
	settings *settings.Store
	keys     *keystore.Store
	files    *filevault.Vault
	auth     *session.PasscodeAuthenticator
	lock     *session.Lock
	audit    *audit.Logger
	svc      *vault.Service
}

var (
	cfgPath string
	app     *appContext
)

var rootCmd = &cobra.Command{
	Use:   "ivault",
	Short: "ivault is a personal offline vault for passwords, cards and documents",
	Long: `A personal offline vault. Item names and types live in a plaintext
catalog; payloads are kept in the OS keyring and document contents are
encrypted with AES-256-GCM on disk. Decrypted content is gated behind a
passcode-locked session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		log := logger.New("cli", cfg.LogLevel)

		store, err := settings.Open(cfg.DataDir)
		if err != nil {
			return err
		}

		keys := keystore.New(cfg.KeyringService)
		files := filevault.New(cfg.DataDir, keys)
		auth := session.NewPasscodeAuthenticator(keys, promptPasscode)
		lock := session.NewLock(auth, cfg.GracePeriod)

		var auditLog *audit.Logger
		if cfg.AuditEnabled {
			auditLog = audit.NewLogger(cfg.DataDir)
			vaultKey, err := files.Key()
			if err != nil {
				return fmt.Errorf("failed to prepare audit log: %w", err)
			}
			if err := auditLog.SetHMACKey(vaultKey); err != nil {
				return err
			}
		}

		svc, err := vault.NewService(vault.Options{
			Settings: store,
			Secrets:  keys,
			Files:    files,
			Session:  lock,
			Audit:    auditLog,
			Log:      log,
		})
		if err != nil {
			return err
		}

		app = &appContext{
			cfg:      cfg,
			log:      log,
			settings: store,
			keys:     keys,
			files:    files,
			auth:     auth,
			lock:     lock,
			audit:    auditLog,
			svc:      svc,
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app != nil && app.settings != nil {
			return app.settings.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default: ~/.ivault/config.yaml)")

	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(mcpServerCmd)
}

// promptPasscode reads the passcode without echo when attached to a
// terminal, falling back to line input for piped stdin.
func promptPasscode(ctx context.Context) (string, error) {
	fmt.Fprint(os.Stderr, "Enter passcode: ")
	if term.IsTerminal(int(syscall.Stdin)) {
		passcode, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read passcode: %w", err)
		}
		return string(passcode), nil
	}
	return readLine()
}

// readLine reads one line from stdin, trimming the trailing newline.
func readLine() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// ensureUnlocked runs the passcode challenge unless the session is
// already unlocked.
func ensureUnlocked(cmd *cobra.Command) error {
	if err := app.svc.Unlock(cmd.Context()); err != nil {
		return fmt.Errorf("failed to unlock vault: %w", err)
	}
	return nil
}

// enrollCmd enrolls (or replaces) the vault passcode.
var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enrolls the vault passcode",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(os.Stderr, "Choose passcode: ")
		passcode1, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to read passcode: %w", err)
		}

		fmt.Fprint(os.Stderr, "Confirm passcode: ")
		passcode2, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to read passcode: %w", err)
		}

		if string(passcode1) != string(passcode2) {
			return fmt.Errorf("passcodes do not match")
		}
		if len(passcode1) == 0 {
			return fmt.Errorf("passcode must not be empty")
		}

		if err := app.auth.Enroll(string(passcode1)); err != nil {
			return fmt.Errorf("failed to enroll passcode: %w", err)
		}
		fmt.Println("Passcode enrolled")
		return nil
	},
}

// statusCmd prints vault status.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows vault status",
	RunE: func(cmd *cobra.Command, args []string) error {
		items := app.svc.Items()
		fmt.Printf("Data directory:  %s\n", app.cfg.DataDir)
		fmt.Printf("Session:         %s\n", app.svc.SessionState())
		fmt.Printf("Passcode set:    %t\n", app.auth.Available())
		fmt.Printf("Items:           %d\n", len(items))
		return nil
	},
}
