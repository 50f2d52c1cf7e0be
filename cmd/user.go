/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pawhouse/apiserver/config"
	"github.com/pawhouse/apiserver/internal/db"
	"github.com/pawhouse/apiserver/internal/services"
	"github.com/pawhouse/apiserver/internal/store"
	"github.com/pawhouse/apiserver/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var userCreateFlags struct {
	firstName string
	lastName  string
	email     string
	age       int
	password  string
	role      string
}

// userCmd groups account administration tasks.
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account, optionally with an elevated role",
	Long: `Creates an account directly in the database. The password is read
from the terminal unless --password is given.

	pawhouse user create --first-name Ada --last-name Admin --email admin@example.com --age 30 --role admin
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg.Log)
		ctx := cmd.Context()

		role := types.Role(strings.ToLower(userCreateFlags.role))
		if !role.Valid() {
			return fmt.Errorf("invalid role %q", userCreateFlags.role)
		}

		password := userCreateFlags.password
		if password == "" {
			var err error
			if password, err = readPassword(); err != nil {
				return err
			}
		}

		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer conn.Close()

		hasher, err := services.NewPasswordHasher(cfg.Auth.PasswordHasher, cfg.Auth.BcryptCost)
		if err != nil {
			return err
		}

		users := store.NewUserRepository(conn)
		tokens := services.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		auth := services.NewAuthService(users, hasher, tokens, logger)

		user, err := auth.Register(ctx, services.RegisterInput{
			FirstName: userCreateFlags.firstName,
			LastName:  userCreateFlags.lastName,
			Email:     userCreateFlags.email,
			Age:       userCreateFlags.age,
			Password:  password,
		})
		if err != nil {
			return err
		}

		if role != types.RoleUser {
			if user, err = services.NewUserService(users).SetRole(ctx, user.Email, role); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) with role %s\n", user.Email, user.ID, user.Role)
		return nil
	},
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	flags := userCreateCmd.Flags()
	flags.StringVar(&userCreateFlags.firstName, "first-name", "", "given name")
	flags.StringVar(&userCreateFlags.lastName, "last-name", "", "family name")
	flags.StringVar(&userCreateFlags.email, "email", "", "login email")
	flags.IntVar(&userCreateFlags.age, "age", 0, "age in years")
	flags.StringVar(&userCreateFlags.password, "password", "", "password (prompted when empty)")
	flags.StringVar(&userCreateFlags.role, "role", string(types.RoleUser), "user, premium or admin")
	_ = userCreateCmd.MarkFlagRequired("email")
}
