package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"task-notify/internal/config"
	"task-notify/internal/models"
	"task-notify/pkg/logger"
	"task-notify/pkg/wsclient"
)

var Version = "dev"

var errGaveUp = errors.New("notification server unreachable, reconnect attempts exhausted")

type credentials struct {
	email    string
	password string
	token    string
	userID   uint
}

func main() {
	rootCmd := &cobra.Command{
		Use:     "taskwatch",
		Short:   "Follow task notifications from a task-notify server",
		Version: Version,
	}

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loginCmd() *cobra.Command {
	var creds credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			api := wsclient.NewAPIClient(cfg.Client.APIURL)

			resp, err := api.Login(cmd.Context(), creds.email, creds.password)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "TASKWATCH_TOKEN=%s\n", resp.Token)
			fmt.Fprintf(out, "TASKWATCH_USER_ID=%d\n", resp.User.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&creds.email, "email", "", "account email")
	cmd.Flags().StringVar(&creds.password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func watchCmd() *cobra.Command {
	var creds credentials

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a line for every task change pushed by the server",
		Long: `Connect to the WebSocket listener and print task notifications.

Authenticate with --email/--password, or pass a token from "taskwatch login"
with --token and --user-id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd.OutOrStdout(), creds)
		},
	}

	cmd.Flags().StringVar(&creds.email, "email", "", "account email")
	cmd.Flags().StringVar(&creds.password, "password", "", "account password")
	cmd.Flags().StringVar(&creds.token, "token", os.Getenv("TASKWATCH_TOKEN"), "JWT issued by the login command")
	cmd.Flags().UintVar(&creds.userID, "user-id", 0, "user id the token belongs to")
	return cmd
}

func runWatch(parent context.Context, out io.Writer, creds credentials) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := wsclient.NewAPIClient(cfg.Client.APIURL)
	if creds.token == "" {
		resp, err := api.Login(ctx, creds.email, creds.password)
		if err != nil {
			return err
		}
		creds.token, creds.userID = resp.Token, resp.User.ID
		fmt.Fprintf(out, "Logged in as %s\n", resp.User.Email)
	}

	tasks, err := api.FetchTasks(ctx, creds.token)
	if err != nil {
		return err
	}
	printTasks(out, tasks)

	gaveUp := make(chan struct{}, 1)
	mgr := wsclient.NewManager(wsclient.Options{
		URL:                  cfg.Client.WSURL,
		UserID:               creds.userID,
		Token:                creds.token,
		MaxReconnectAttempts: cfg.Client.MaxReconnectAttempts,
		Fetcher:              api,
		Logger:               log,
		OnToast: func(message string) {
			fmt.Fprintf(out, "[%s] %s\n", time.Now().Format("15:04:05"), message)
		},
		OnTasks: func(tasks []models.Task) {
			printTasks(out, tasks)
		},
		OnStateChange: func(state wsclient.State) {
			log.Debug("Connection state changed", "state", state.String())
			if state == wsclient.StateDisconnected {
				select {
				case gaveUp <- struct{}{}:
				default:
				}
			}
		},
	})

	mgr.Connect()
	defer mgr.Disconnect()

	select {
	case <-ctx.Done():
		return nil
	case <-gaveUp:
		return errGaveUp
	}
}

func printTasks(out io.Writer, tasks []models.Task) {
	counts := map[models.TaskStatus]int{}
	for _, t := range tasks {
		counts[t.Status]++
	}
	fmt.Fprintf(out, "%d tasks (pending %d, in progress %d, done %d)\n",
		len(tasks),
		counts[models.TaskStatusPending],
		counts[models.TaskStatusInProgress],
		counts[models.TaskStatusDone],
	)
}
