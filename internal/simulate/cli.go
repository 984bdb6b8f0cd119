package simulate

import (
	"context"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/nback/pkg/logger"
	"github.com/spf13/cobra"
)

// Default configuration constants.
const (
	defaultPlayers    = 50
	defaultSessions   = 20
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultRate       = 200
	defaultTimeout    = 10 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

// NewRootCommand builds the simulate CLI.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "simulate",
		Short:         "Load and consistency simulator for the n-back scoring engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr())); err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			return logger.SetLevelString("debug")
		}
		return nil
	}
	root.AddCommand(newRunCommand())
	return root
}

func newRunCommand() *cobra.Command {
	cfg := &Config{}
	var runTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit generated sessions and verify leaderboards and ranks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.Verbose, _ = cmd.Flags().GetBool("verbose")
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, runTimeout)
			defer cancel()

			_, err := Run(ctx, cfg)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.IntVar(&cfg.Players, "players", defaultPlayers, "Number of players")
	f.IntVar(&cfg.SessionsPerPlayer, "sessions", defaultSessions, "Sessions per player")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
	f.Float64Var(&cfg.Rate, "rate", defaultRate, "Submissions per second, 0 for unlimited")
	f.StringVar(&cfg.Secret, "secret", "", "HS256 secret shared with the server (jwt_secret)")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.DurationVar(&runTimeout, "deadline", defaultRunTimeout, "Overall run deadline")
	f.Uint64Var(&cfg.Seed, "seed", uint64(time.Now().UnixNano()), "Seed for session generation")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}
