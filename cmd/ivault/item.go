package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ispacehq/ivault/pkg/catalog"
	"github.com/ispacehq/ivault/pkg/vault"
)

var (
	addType    string
	addFile    string
	addDocType string

	getOutput string

	listType   string
	searchType string

	deleteForce bool
)

func init() {
	addCmd.Flags().StringVarP(&addType, "type", "t", "password", "Item type: password, card, document")
	addCmd.Flags().StringVar(&addFile, "file", "", "Document content file (document items)")
	addCmd.Flags().StringVar(&addDocType, "doc-type", "pdf", "Document type: pdf, image")

	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "Write document content to this file")

	listCmd.Flags().StringVarP(&listType, "type", "t", "", "Filter by item type")
	searchCmd.Flags().StringVarP(&searchType, "type", "t", "password", "Item type to search")

	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}

// findByName resolves a display name to its catalog record.
func findByName(name string) (catalog.StoredItem, error) {
	for _, item := range app.svc.Items() {
		if item.Name == name {
			return item, nil
		}
	}
	return catalog.StoredItem{}, fmt.Errorf("no item named %q", name)
}

func promptField(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	return readLine()
}

func promptSecretField(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	if term.IsTerminal(int(syscall.Stdin)) {
		value, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return string(value), nil
	}
	return readLine()
}

// addCmd adds an item to the vault.
var addCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Adds an item to the vault",
	Long: `Adds an item. The payload fields are prompted interactively:

  ivault add "GMail" --type password
  ivault add "Visa" --type card
  ivault add "Passport" --type document --file passport.pdf --doc-type pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		if err := ensureUnlocked(cmd); err != nil {
			return err
		}

		var item catalog.StoredItem
		var err error

		switch catalog.ItemType(addType) {
		case catalog.TypePassword:
			website, perr := promptField("Website")
			if perr != nil {
				return perr
			}
			username, perr := promptField("Username")
			if perr != nil {
				return perr
			}
			secret, perr := promptSecretField("Password")
			if perr != nil {
				return perr
			}
			item, err = app.svc.AddItem(name, vault.PasswordDetails{
				Website:  website,
				Username: username,
				Secret:   secret,
			})

		case catalog.TypeCard:
			holder, perr := promptField("Name on card")
			if perr != nil {
				return perr
			}
			number, perr := promptSecretField("Card number")
			if perr != nil {
				return perr
			}
			expiry, perr := promptField("Expiry (MM/YY)")
			if perr != nil {
				return perr
			}
			cvv, perr := promptSecretField("CVV")
			if perr != nil {
				return perr
			}
			item, err = app.svc.AddItem(name, vault.CardDetails{
				CardHolderName: holder,
				CardNumber:     number,
				ExpiryDate:     expiry,
				CVV:            cvv,
			})

		case catalog.TypeDocument:
			if addFile == "" {
				return fmt.Errorf("--file is required for document items")
			}
			docType := vault.DocumentType(addDocType)
			if !docType.Valid() {
				return fmt.Errorf("invalid --doc-type %q (use pdf or image)", addDocType)
			}
			content, rerr := os.ReadFile(addFile)
			if rerr != nil {
				return fmt.Errorf("failed to read %q: %w", addFile, rerr)
			}
			item, err = app.svc.AddDocument(name, vault.DocumentDetails{
				FileName:     addFile,
				DocumentType: docType,
			}, content)

		default:
			return fmt.Errorf("unknown item type %q", addType)
		}

		if err != nil {
			return fmt.Errorf("failed to add item: %w", err)
		}
		fmt.Printf("Added %s item '%s' (%s)\n", item.Type, item.Name, item.ID)
		return nil
	},
}

// getCmd prints an item's decrypted payload.
var getCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Shows an item's decrypted details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := findByName(args[0])
		if err != nil {
			return err
		}

		if err := ensureUnlocked(cmd); err != nil {
			return err
		}

		details, err := app.svc.Details(item)
		if err != nil {
			return fmt.Errorf("failed to read item: %w", err)
		}

		switch d := details.(type) {
		case vault.PasswordDetails:
			fmt.Printf("Website:  %s\n", d.Website)
			fmt.Printf("Username: %s\n", d.Username)
			fmt.Printf("Password: %s\n", d.Secret)

		case vault.CardDetails:
			fmt.Printf("Card holder: %s\n", d.CardHolderName)
			fmt.Printf("Card number: %s\n", d.CardNumber)
			fmt.Printf("Expiry:      %s\n", d.ExpiryDate)
			fmt.Printf("CVV:         %s\n", d.CVV)

		case vault.DocumentDetails:
			fmt.Printf("File name: %s\n", d.FileName)
			fmt.Printf("Type:      %s\n", d.DocumentType)
			if getOutput != "" {
				content, err := app.svc.ReadDocument(item)
				if err != nil {
					return fmt.Errorf("failed to decrypt document: %w", err)
				}
				if err := os.WriteFile(getOutput, content, 0600); err != nil {
					return fmt.Errorf("failed to write %q: %w", getOutput, err)
				}
				fmt.Printf("Content written to %s\n", getOutput)
			}
		}
		return nil
	},
}

// listCmd lists items without touching decrypted content.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists items",
	RunE: func(cmd *cobra.Command, args []string) error {
		var items []catalog.StoredItem
		if listType != "" {
			t := catalog.ItemType(listType)
			if !t.Valid() {
				return fmt.Errorf("unknown item type %q", listType)
			}
			items = app.svc.ListByType(t)
		} else {
			items = app.svc.Items()
		}

		if len(items) == 0 {
			fmt.Println("No items stored")
			return nil
		}
		for _, item := range items {
			fmt.Printf("%-10s %s\n", item.Type, item.Name)
		}
		return nil
	},
}

// searchCmd searches items by name within one type.
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Searches items by name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t := catalog.ItemType(searchType)
		if !t.Valid() {
			return fmt.Errorf("unknown item type %q", searchType)
		}

		query := ""
		if len(args) > 0 {
			query = args[0]
		}

		items := app.svc.Search(t, query)
		if len(items) == 0 {
			fmt.Println("No matching items")
			return nil
		}
		for _, item := range items {
			fmt.Printf("%-10s %s\n", item.Type, item.Name)
		}
		return nil
	},
}

// deleteCmd deletes an item and its payload.
var deleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Deletes an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := findByName(args[0])
		if err != nil {
			return err
		}

		if !deleteForce {
			fmt.Printf("Delete %s item '%s'? [y/N]: ", item.Type, item.Name)
			response, err := readLine()
			if err != nil || (response != "y" && response != "Y") {
				fmt.Println("Aborted")
				return nil
			}
		}

		if err := ensureUnlocked(cmd); err != nil {
			return err
		}
		if err := app.svc.DeleteItem(item.ID); err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
		fmt.Printf("Deleted '%s'\n", item.Name)
		return nil
	},
}
