package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"spendlog/internal/auth"
	"spendlog/internal/categorize"
	"spendlog/internal/cli"
	"spendlog/internal/config"
	"spendlog/internal/core"
	"spendlog/internal/llm"
	"spendlog/internal/log"
	"spendlog/internal/parser"
	"spendlog/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root := newRootCommand(config.Load(), stdin)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func newRootCommand(cfg *config.Config, stdin io.Reader) *cobra.Command {
	root := &cobra.Command{
		Use:   "spendlogctl",
		Short: "Administer a spendlog installation",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.SQLiteDBPath, "db", cfg.SQLiteDBPath, "Path to the SQLite database")

	root.AddCommand(newAddUserCommand(cfg, stdin))
	root.AddCommand(newTokenCommand(cfg, stdin))
	root.AddCommand(newParseCommand(cfg))
	return root
}

func openAuth(cfg *config.Config) (*auth.Service, func() error, error) {
	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return auth.NewService(store, []byte(cfg.JWTSecret), cfg.TokenTTL, nil), store.Close, nil
}

func newAddUserCommand(cfg *config.Config, stdin io.Reader) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user (prompts for the password when omitted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			pw, err := passwordOrPrompt(password, stdin, out)
			if err != nil {
				return err
			}

			svc, closeStore, err := openAuth(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			u, err := svc.Register(cmd.Context(), username, pw)
			if errors.Is(err, auth.ErrUserExists) {
				return fmt.Errorf("user %s already exists", username)
			}
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			fmt.Fprintf(out, "User %s created successfully with ID %s\n", u.Username, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "Username")
	cmd.Flags().StringVar(&password, "password", "", "Password (optional, will prompt if omitted)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newTokenCommand(cfg *config.Config, stdin io.Reader) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required")
			}
			pw, err := passwordOrPrompt(password, stdin, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			svc, closeStore, err := openAuth(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			token, err := svc.Login(cmd.Context(), username, pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "Username")
	cmd.Flags().StringVar(&password, "password", "", "Password (optional, will prompt if omitted)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newParseCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <message>",
		Short: "Parse a free-text expense and print the draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), Output: cmd.ErrOrStderr(), Component: log.ComponentCLI})

			var model llm.TextGenerator
			if cfg.ModelEnabled() {
				g, err := llm.NewGemini(cmd.Context(), cfg.GeminiAPIKey, cfg.GeminiModel, cfg.ModelTimeout)
				if err != nil {
					return err
				}
				model = g
			}

			ctx := cmd.Context()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			draft, err := parser.New(model, logger).Parse(ctx, args[0], time.Now())
			if err != nil {
				if model != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "GEMINI_API_KEY not set; showing keyword category only")
				return enc.Encode(map[string]core.Category{"category": categorize.Fallback(args[0])})
			}
			draft.Category = categorize.New(model, logger).Classify(ctx, draft.Title)
			return enc.Encode(draft)
		},
	}
}

func passwordOrPrompt(password string, stdin io.Reader, prompt io.Writer) (string, error) {
	if password == "" {
		fmt.Fprint(prompt, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(prompt)
	}
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password cannot be empty")
	}
	return password, nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Non-terminal input (pipes, tests)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
