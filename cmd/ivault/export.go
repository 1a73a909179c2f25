package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ispacehq/ivault/pkg/export"
)

var restoreOnConflict string

func init() {
	restoreCmd.Flags().StringVar(&restoreOnConflict, "on-conflict", "error", "Conflict handling: error, skip, overwrite")
}

// promptExportPassphrase reads the export passphrase, with confirmation
// when confirm is set (creating a new export).
func promptExportPassphrase(confirm bool) ([]byte, error) {
	fmt.Fprint(os.Stderr, "Export passphrase: ")
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}

	if confirm {
		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		again, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to read passphrase: %w", err)
		}
		if string(passphrase) != string(again) {
			return nil, fmt.Errorf("passphrases do not match")
		}
	}
	return passphrase, nil
}

func conflictMode(s string) (export.ConflictMode, error) {
	switch s {
	case "error":
		return export.ConflictError, nil
	case "skip":
		return export.ConflictSkip, nil
	case "overwrite":
		return export.ConflictOverwrite, nil
	default:
		return 0, fmt.Errorf("invalid --on-conflict %q (use error, skip or overwrite)", s)
	}
}

// exportCmd writes an encrypted snapshot of the whole vault.
var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Exports the vault to an encrypted file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd); err != nil {
			return err
		}

		passphrase, err := promptExportPassphrase(true)
		if err != nil {
			return err
		}

		f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer f.Close()

		if err := export.Export(f, app.svc, passphrase); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		if app.audit != nil {
			if err := app.audit.LogSuccess("export.create", ""); err != nil {
				app.log.Warn().Err(err).Msg("audit write failed")
			}
		}
		fmt.Printf("Exported %d items to %s\n", len(app.svc.Items()), args[0])
		return nil
	},
}

// restoreCmd imports items from an encrypted export file.
var restoreCmd = &cobra.Command{
	Use:   "restore [file]",
	Short: "Restores items from an encrypted export file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := conflictMode(restoreOnConflict)
		if err != nil {
			return err
		}

		if err := ensureUnlocked(cmd); err != nil {
			return err
		}

		passphrase, err := promptExportPassphrase(false)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open export file: %w", err)
		}
		defer f.Close()

		result, err := export.Restore(f, app.svc, passphrase, mode)
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		if app.audit != nil {
			if err := app.audit.LogSuccess("export.restore", ""); err != nil {
				app.log.Warn().Err(err).Msg("audit write failed")
			}
		}
		fmt.Printf("Restored %d items (%d skipped)\n", result.ItemsRestored, result.ItemsSkipped)
		return nil
	},
}

// verifyCmd checks an export file without touching the vault.
var verifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verifies an export file's integrity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := promptExportPassphrase(false)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open export file: %w", err)
		}
		defer f.Close()

		result, err := export.Verify(f, passphrase)
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}

		fmt.Printf("Export OK: version %d, %d items, created %s\n",
			result.Version, result.ItemCount, result.CreatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}
