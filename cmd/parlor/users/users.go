// Package userscmder provides the users command for managing the backend's
// user store.
package userscmder

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/parlorhq/parlor/pkg/auth"
	"github.com/parlorhq/parlor/pkg/cliui"
	"github.com/parlorhq/parlor/pkg/dotdir"
)

const usersLongDesc string = `Manage the backend's user store.

Users are stored in auth/users.json in the .parlor/ directory with
argon2id-hashed passwords. The backend's login endpoint authenticates
against this store and issues bearer tokens.

Use subcommands to add, list, update, or remove users:
  parlor users add <email>          Add a user (prompts for password)
  parlor users list                 List users
  parlor users rm <email>           Remove a user
  parlor users deactivate <email>   Disable login for a user
  parlor users activate <email>     Re-enable login for a user

Examples:
  parlor users add ana@example.com --roles admin --department it
  echo $PASSWORD | parlor users add bob@example.com --department sales
  parlor users list`

const usersShortDesc string = "Manage backend users"

func NewUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: usersShortDesc,
		Long:  usersLongDesc,
	}

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newSetActiveCmd("deactivate", "Disable login for a user", false))
	cmd.AddCommand(newSetActiveCmd("activate", "Re-enable login for a user", true))

	return cmd
}

func openRepo(cmd *cobra.Command) (*auth.Repo, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving parlor directory: %w", err)
	}

	repo, err := auth.NewRepo(filepath.Join(target, "auth", "users.json"))
	if err != nil {
		return nil, fmt.Errorf("opening user store: %w", err)
	}
	return repo, nil
}

func newAddCmd() *cobra.Command {
	var roles []string
	var department string

	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Add a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}

			password, err := readPassword(args[0])
			if err != nil {
				return err
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}

			user, err := repo.Create(args[0], hash, roles, department)
			if err != nil {
				return err
			}

			fmt.Printf("\n  %s Added %s %s\n\n",
				cliui.SuccessMark,
				cliui.NameStyle.Render(user.Email),
				cliui.DimStyle.Render("("+user.ID+")"),
			)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&roles, "roles", []string{"user"}, "Roles to grant (comma-separated)")
	cmd.Flags().StringVar(&department, "department", "global", "Department (hr, finance, operations, sales, it, global)")

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}

			users, err := repo.List()
			if err != nil {
				return err
			}

			if len(users) == 0 {
				fmt.Printf("\n  %s No users.\n", cliui.DimStyle.Render("●"))
				fmt.Printf("  Use 'parlor users add <email>' to add one.\n\n")
				return nil
			}

			fmt.Printf("\n  %s\n\n", cliui.HeaderStyle.Render("Users"))
			for _, u := range users {
				mark := cliui.SuccessMark
				if !u.IsActive {
					mark = cliui.FailMark
				}
				fmt.Printf("  %s  %s  %s\n",
					mark,
					cliui.NameStyle.Render(u.Email),
					cliui.DimStyle.Render(fmt.Sprintf("%s [%s]", u.Department, strings.Join(u.Roles, ","))),
				)
			}
			fmt.Println()
			return nil
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <email>",
		Short: "Remove a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}

			user, err := repo.GetByEmail(args[0])
			if err != nil {
				return err
			}

			if err := repo.Delete(user.ID); err != nil {
				return err
			}

			fmt.Printf("\n  %s Removed %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(user.Email))
			return nil
		},
	}
}

func newSetActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}

			user, err := repo.GetByEmail(args[0])
			if err != nil {
				return err
			}

			isActive := active
			if _, err := repo.Update(user.ID, auth.Patch{IsActive: &isActive}); err != nil {
				return err
			}

			fmt.Printf("\n  %s Updated %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(user.Email))
			return nil
		},
	}
}

// readPassword reads a password from stdin. If stdin is a pipe, it reads the
// first line. Otherwise, it prompts interactively with hidden input.
func readPassword(email string) (string, error) {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return "", fmt.Errorf("checking stdin: %w", err)
	}

	// Piped input
	if (fi.Mode() & os.ModeCharDevice) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			return strings.TrimSpace(scanner.Text()), nil
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return "", errors.New("no input received on stdin")
	}

	// Interactive terminal
	fmt.Printf("Enter password for %s: ", email)
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println() // newline after hidden input
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return string(pwBytes), nil
}
