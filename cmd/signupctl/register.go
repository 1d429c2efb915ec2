package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"signupflow/auth"
	"signupflow/bootstrap"
)

type registrar interface {
	Register(ctx context.Context, email, password string, data auth.UserData) (auth.Result, error)
}

type registerInput struct {
	email    string
	password string
	name     string
	role     string
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var in registerInput

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an account and create its profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			if in.email == "" {
				in.email = promptInput(reader, out, "Email: ")
			}
			if in.password == "" {
				pw, err := promptPassword(reader, out, "Password: ")
				if err != nil {
					return err
				}
				in.password = pw
			}

			app, err := bootstrap.Build(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			return runRegister(cmd.Context(), app.Service, out, in)
		},
	}

	cmd.Flags().StringVar(&in.email, "email", "", "email address")
	cmd.Flags().StringVar(&in.password, "password", "", "password (prompted when omitted)")
	cmd.Flags().StringVar(&in.name, "name", "", "display name")
	cmd.Flags().StringVar(&in.role, "role", "", "profile role: agent or client")

	return cmd
}

func runRegister(ctx context.Context, reg registrar, out io.Writer, in registerInput) error {
	if in.email == "" || in.password == "" {
		return errors.New("email and password are required")
	}

	res, err := reg.Register(ctx, in.email, in.password, auth.UserData{
		Name: in.name,
		Role: auth.Role(in.role),
	})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	fmt.Fprintf(out, "Registered %s (%s)\n", res.User.Email, res.User.ID)
	if res.Session == nil {
		fmt.Fprintln(out, "No session issued; confirm the email address to sign in")
	}
	return nil
}

func promptInput(reader *bufio.Reader, out io.Writer, prompt string) string {
	fmt.Fprint(out, prompt)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// promptPassword hides input on a terminal and falls back to a plain line
// read when stdin is piped.
func promptPassword(reader *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)

	fd := int(os.Stdin.Fd())
	if reader.Buffered() == 0 && term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
