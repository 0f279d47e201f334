package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hedgewatch/internal/credentials"
)

func loginCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the analysis service token in the OS keyring",
		Run: func(cmd *cobra.Command, args []string) {
			account := loadConfig().ServiceSnapshot().BaseURL
			if token == "" {
				if !isInteractive() {
					fmt.Fprintln(os.Stderr, "Error: no terminal; pass the token with --token")
					os.Exit(1)
				}
				var err error
				token, err = promptToken(account)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %s\n", err)
					os.Exit(1)
				}
			}
			token = strings.TrimSpace(token)
			if token == "" {
				fmt.Fprintln(os.Stderr, "Error: empty token")
				os.Exit(1)
			}
			if err := (credentials.Keyring{}).Set(account, token); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Token for %s saved to the keyring.\n", account)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "token to store (prompted when omitted)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored service token",
		Run: func(cmd *cobra.Command, args []string) {
			account := loadConfig().ServiceSnapshot().BaseURL
			err := (credentials.Keyring{}).Delete(account)
			switch {
			case errors.Is(err, credentials.ErrNotFound):
				fmt.Printf("No token stored for %s.\n", account)
			case err != nil:
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			default:
				fmt.Printf("Token for %s removed.\n", account)
			}
		},
	}
}
