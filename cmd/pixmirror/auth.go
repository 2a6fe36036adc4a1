package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pixmirror/pkg/session"
)

var (
	authAccount      string
	authAccessToken  string
	authRefreshToken string
	authAccountID    uint64
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored platform tokens",
	Long: `Store and remove the platform tokens used by the mirror.

Tokens are produced by an external login flow; this command only persists
them in the system keychain. The PIXMIRROR_ACCESS_TOKEN environment variable
works as a read-only alternative when no keychain is available.`,
}

var authStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Store a token for an account",
	Example: `  pixmirror auth store --access-token <token> --account-id 12345
  pixmirror auth store --account alt --refresh-token <token>`,
	Args: cobra.NoArgs,
	RunE: runAuthStore,
}

var authRemoveCmd = &cobra.Command{
	Use:   "remove [account]",
	Short: "Remove a stored token",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthRemove,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authStoreCmd)
	authCmd.AddCommand(authRemoveCmd)

	authStoreCmd.Flags().StringVarP(&authAccount, "account", "a", "default", "local name to store the token under")
	authStoreCmd.Flags().StringVar(&authAccessToken, "access-token", "", "platform access token")
	authStoreCmd.Flags().StringVar(&authRefreshToken, "refresh-token", "", "platform refresh token")
	authStoreCmd.Flags().Uint64Var(&authAccountID, "account-id", 0, "platform account id of the token owner")
}

func runAuthStore(cmd *cobra.Command, args []string) error {
	if authAccessToken == "" && authRefreshToken == "" {
		return fmt.Errorf("at least one of --access-token or --refresh-token is required")
	}

	mgr := session.NewManager()
	err := mgr.Store(&session.Token{
		Account:      authAccount,
		AccountID:    authAccountID,
		AccessToken:  authAccessToken,
		RefreshToken: authRefreshToken,
	})
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	fmt.Printf("token stored for account %q\n", authAccount)
	return nil
}

func runAuthRemove(cmd *cobra.Command, args []string) error {
	account := "default"
	if len(args) == 1 {
		account = args[0]
	}

	if err := session.NewManager().Delete(account); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	fmt.Printf("token removed for account %q\n", account)
	return nil
}
