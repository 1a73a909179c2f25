package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var auditLimit int

func init() {
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
}

// auditCmd is the parent command for audit log operations.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// auditListCmd lists audit events.
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists audit log events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.audit == nil {
			return fmt.Errorf("audit logging is disabled")
		}

		events, err := app.audit.ListEvents(auditLimit)
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No audit events")
			return nil
		}

		for _, event := range events {
			line := fmt.Sprintf("%s %s %s", event.Timestamp, event.Operation, event.Result)
			if event.ItemHMAC != "" {
				hash := event.ItemHMAC
				if len(hash) > 16 {
					hash = hash[:16] + "..."
				}
				line += " item:" + hash
			}
			if event.Error != nil {
				line += " error:" + event.Error.Code
			}
			fmt.Println(line)
		}
		fmt.Printf("\nTotal: %d events\n", len(events))
		return nil
	},
}

// auditVerifyCmd verifies the audit log HMAC chain.
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verifies audit log chain integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.audit == nil {
			return fmt.Errorf("audit logging is disabled")
		}

		result, err := app.audit.Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		if result.Valid {
			fmt.Printf("Audit log verified: %d records, chain intact\n", result.RecordsTotal)
			return nil
		}

		fmt.Println("Audit log verification FAILED")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
		return fmt.Errorf("audit log integrity check failed")
	},
}
