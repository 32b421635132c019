package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"issuebot/internal/app"
	"issuebot/internal/buildinfo"
	"issuebot/internal/config"
	"issuebot/internal/format"
	"issuebot/internal/mention"
	logx "issuebot/pkg/logx"
)

const stopTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		envFile string
	)

	root := &cobra.Command{
		Use:   "issuebot",
		Short: "Chat bot that expands issue keys into issue summaries",
		Long: `issuebot watches Slack or Telegram conversations for issue keys (ABC-123),
fetches the issues from Jira and replies with a formatted summary.

Running issuebot without a subcommand is the same as "issuebot run".`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config (missing file is ignored)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the bot",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runBot(cmd.Context(), cfgPath)
			},
		},
		&cobra.Command{
			Use:   "check-config",
			Short: "Validate the config and report template problems",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return checkConfig(cmd, cfgPath)
			},
		},
		newExtractCmd(),
		newRenderCmd(&cfgPath),
	)
	return root
}

func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func runBot(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, c := context.WithTimeout(context.Background(), stopTimeout)
		defer c()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return err
	}

	reason := app.StopSIGTERM
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, c := context.WithTimeout(context.Background(), stopTimeout)
	defer c()
	if err := a.Stop(stopCtx, reason); err != nil {
		return err
	}
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func parseConfig(path string) (*config.Config, error) {
	cfg, err := config.NewConfigManager(path).Parse()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func checkConfig(cmd *cobra.Command, path string) error {
	cfg, err := parseConfig(path)
	if err != nil {
		return err
	}
	_, warnings, err := app.BuildEngine(cfg, nil)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d formats, platform %s)\n", path, len(cfg.Formats), cfg.Chat.Platform)
	return nil
}

func newExtractCmd() *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "extract [text...]",
		Short: "Print the issue keys found in the arguments or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := mention.New(pattern)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				for _, k := range ex.Extract(strings.Join(args, " ")) {
					fmt.Fprintln(out, k)
				}
				return nil
			}
			// stdin: one message per line
			sc := bufio.NewScanner(cmd.InOrStdin())
			sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
			for sc.Scan() {
				for _, k := range ex.Extract(sc.Text()) {
					fmt.Fprintln(out, k)
				}
			}
			return sc.Err()
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "identifier regexp (default "+mention.DefaultPattern+")")
	return cmd
}

func newRenderCmd(cfgPath *string) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "render KEY",
		Short: "Fetch one issue and print the composed attachment as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parseConfig(*cfgPath)
			if err != nil {
				return err
			}
			eng, _, err := app.BuildEngine(cfg, nil)
			if err != nil {
				return err
			}
			client, err := app.NewTrackerClient(cfg, logx.Nop())
			if err != nil {
				return err
			}

			name := profile
			if name == "" {
				name = eng.Selection.Default
			}
			p, ok := eng.Profiles[name]
			if !ok {
				return fmt.Errorf("unknown profile %q", name)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			issue, err := client.FindIssue(ctx, args[0])
			if err != nil {
				return err
			}
			att, err := eng.Composer.Compose(issue, p)
			var te *format.TemplateError
			if errors.As(err, &te) {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", te)
			} else if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(att)
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "format profile (default: profiles.default)")
	return cmd
}
