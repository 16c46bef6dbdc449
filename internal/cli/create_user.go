package cli

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rglservice/mediation-strapi-import-export/internal/config"
	"github.com/rglservice/mediation-strapi-import-export/internal/store"
)

// CreateUserCommand creates a user record with an API token, for use
// with the server's token authentication mode.
type CreateUserCommand struct {
	Username     string
	Email        string
	Token        string
	DatabasePath string
}

func NewCreateUserCommand() *CreateUserCommand {
	return &CreateUserCommand{}
}

func (cmd *CreateUserCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)

	fs.StringVar(&cmd.Username, "username", "", "Username for the new user (required)")
	fs.StringVar(&cmd.Email, "email", "", "Email address for the new user")
	fs.StringVar(&cmd.Token, "token", "", "API token to assign (default: a random token is generated)")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the local database file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s create-user -username <name> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Create a user with an API token for authenticated imports.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Username == "" {
		return fmt.Errorf("required flag -username not provided")
	}

	if cmd.Token == "" {
		raw := make([]byte, 24)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		cmd.Token = hex.EncodeToString(raw)
	}

	return nil
}

func (cmd *CreateUserCommand) Run() error {
	absDBPath, err := filepath.Abs(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for database: %w", err)
	}

	entityStore, err := store.NewStore(absDBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer entityStore.Close()

	user, err := entityStore.CreateUser(cmd.Username, cmd.Email, cmd.Token)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("Created user %q (id %d)\n", user.Username, user.ID)
	fmt.Printf("API token: %s\n", cmd.Token)
	return nil
}
