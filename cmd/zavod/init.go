package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/zavod/internal/db"
	"github.com/erazemk/zavod/internal/model"
	"github.com/erazemk/zavod/internal/store"
)

type instituteFlags struct {
	name  string
	code  string
	admin string
}

func (f *instituteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "institute name (required)")
	cmd.Flags().StringVar(&f.code, "code", "", "short unique institute code (required)")
	cmd.Flags().StringVarP(&f.admin, "user", "u", "admin", "username of the institute's first admin")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("code")
}

func newInitCommand() *cobra.Command {
	var f instituteFlags
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new database with its first institute and admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := cfg.Database.Path
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("database file %s already exists", path)
			}

			database, err := db.Open(path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer database.Close()

			if err := db.Migrate(cmd.Context(), database); err != nil {
				database.Close()
				os.Remove(path)
				return fmt.Errorf("migrating database: %w", err)
			}

			password, err := addInstitute(cmd.Context(), database, f)
			if err != nil {
				database.Close()
				os.Remove(path)
				return err
			}

			fmt.Printf("Database created: %s\n", path)
			fmt.Println("Schema initialized.")
			fmt.Println()
			printInstituteResult(f, password)
			return nil
		},
	}
	cmd.Flags().StringP("db", "d", "", "SQLite database path (overrides database.path)")
	f.register(cmd)
	return cmd
}

func newInstituteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "institute",
		Short: "Manage institutes",
	}

	var f instituteFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Add an institute with its first admin to an existing database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := openExisting(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			password, err := addInstitute(cmd.Context(), database, f)
			if err != nil {
				return err
			}
			printInstituteResult(f, password)
			return nil
		},
	}
	add.Flags().StringP("db", "d", "", "SQLite database path (overrides database.path)")
	f.register(add)

	cmd.AddCommand(add)
	return cmd
}

// openExisting opens the configured database and brings its schema up to date.
func openExisting(ctx context.Context) (*sql.DB, error) {
	path := cfg.Database.Path
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("database %s does not exist, run zavod init first", path)
	}

	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return database, nil
}

// addInstitute creates the institute and its admin with a random password,
// which it returns.
func addInstitute(ctx context.Context, database *sql.DB, f instituteFlags) (string, error) {
	f.code = strings.ToLower(strings.TrimSpace(f.code))
	if strings.TrimSpace(f.name) == "" || f.code == "" {
		return "", errors.New("institute name and code are required")
	}

	inst, err := store.CreateInstitute(ctx, database, strings.TrimSpace(f.name), f.code)
	if err != nil {
		return "", fmt.Errorf("creating institute: %w", err)
	}

	password, err := generatePassword(16)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	if _, err := store.CreateUser(ctx, database, inst.ID, f.admin, string(hash), model.RoleAdmin); err != nil {
		return "", fmt.Errorf("creating admin user: %w", err)
	}
	return password, nil
}

// printInstituteResult prints the created institute and admin credentials to stdout.
func printInstituteResult(f instituteFlags, password string) {
	fmt.Printf("Institute created: %s (%s)\n", f.name, strings.ToLower(strings.TrimSpace(f.code)))
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", f.admin)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
