package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/orders-tracker/internal/entity"
)

func runUser(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: ordersctl user <add|show> [flags]")
	}
	switch args[0] {
	case "add":
		return runUserAdd(args[1:])
	case "show":
		return runUserShow(args[1:])
	default:
		return fmt.Errorf("unknown user command %q", args[0])
	}
}

func runUserAdd(args []string) error {
	fs := flag.NewFlagSet("user add", flag.ContinueOnError)
	email := fs.String("email", "", "owner email address")
	jsonOut := fs.Bool("json", false, "print JSON output")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}

	ctx := context.Background()
	s, err := openSession(ctx, *verbose)
	if err != nil {
		return err
	}
	defer s.Close()

	u, err := s.users.Create(ctx, *email)
	if err != nil {
		return err
	}
	return printUser(u, *jsonOut)
}

func runUserShow(args []string) error {
	fs := flag.NewFlagSet("user show", flag.ContinueOnError)
	email := fs.String("email", "", "owner email address")
	id := fs.String("id", "", "owner id")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	var u *entity.User
	switch {
	case *id != "":
		ownerID, perr := uuid.Parse(*id)
		if perr != nil {
			return fmt.Errorf("invalid --id: %w", perr)
		}
		u, err = s.users.GetByID(ctx, ownerID)
	case *email != "":
		u, err = s.users.GetByEmail(ctx, *email)
	default:
		return errors.New("--email or --id is required")
	}
	if err != nil {
		return err
	}
	return printUser(u, *jsonOut)
}

func printUser(u *entity.User, jsonOut bool) error {
	if jsonOut {
		return printJSON(u)
	}
	fmt.Fprintf(stdout, "%s %s (since %s)\n", u.ID, u.Email, u.CreatedAt.Format("2006-01-02"))
	return nil
}
