package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/artpar/docgate/adapters/auth"
	"github.com/artpar/docgate/config"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Mint a bearer token for token auth",
	Long: `Mint an HS256 bearer token signed with auth.secret.

The server must run with auth.mode: token. Without --resource the
token may write to every resource.

Examples:
  docgate token importer --resource contacts --resource people
  docgate token ops`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Hash a password for auth.users",
	Long: `Print the bcrypt hash of a password for the password_hash field of
a basic-auth user. The password is read from stdin when not given.

Examples:
  docgate hash-password 's3cret'
  echo 's3cret' | docgate hash-password`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHashPassword,
}

var (
	tokenResources []string
	hashCost       int
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(hashPasswordCmd)

	tokenCmd.Flags().StringSliceVarP(&tokenResources, "resource", "r", nil, "resource the token may write (repeatable)")
	hashPasswordCmd.Flags().IntVar(&hashCost, "cost", 0, "bcrypt cost (default 10)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cfg.Auth.Mode != "token" {
		return fmt.Errorf("auth.mode is %q, tokens need auth.mode: token", cfg.Auth.Mode)
	}

	svc := auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	token, expiresAt, err := svc.GenerateToken(args[0], tokenResources)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := auth.HashPassword(password, hashCost)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
