package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/balduz84/passdoo/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through the browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApp()
		if err != nil {
			return err
		}
		defer application.Close()

		fmt.Printf("Opening %s ...\n", application.AuthService.LoginURL())
		if err := application.Login(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Signed in")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApp()
		if err != nil {
			return err
		}
		defer application.Close()

		application.AuthService.Logout(cmd.Context())
		fmt.Println("Signed out")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Validate the stored session with the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApp()
		if err != nil {
			return err
		}
		defer application.Close()

		if application.AuthService.CheckAuthStatus(cmd.Context()) {
			fmt.Println("authenticated")
		} else {
			fmt.Println("unauthenticated")
		}
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Store an API token instead of signing in through the browser",
	Long:  `Reads a Passdoo API token from the terminal (or stdin), validates it with the server and stores it as the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := readToken()
		if err != nil {
			return err
		}

		application, err := openApp()
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.Adopt(cmd.Context(), models.NewBearerToken(token)); err != nil {
			return err
		}
		fmt.Println("Token stored")
		return nil
	},
}

// readToken prompts without echo on a terminal and reads one line otherwise
func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "API token: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

