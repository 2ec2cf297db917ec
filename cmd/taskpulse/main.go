package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/taskpulse/internal/config"
	"github.com/stellarlinkco/taskpulse/internal/gateway"
	"github.com/stellarlinkco/taskpulse/internal/id"
	"github.com/stellarlinkco/taskpulse/internal/logger"
	"github.com/stellarlinkco/taskpulse/internal/seed"
	"github.com/stellarlinkco/taskpulse/internal/store"
)

// gatewayOptions is passed to every gateway the CLI builds (overridden in tests)
var gatewayOptions gateway.Options

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskpulse",
		Short:         "taskpulse - scheduled task status polls over Telegram",
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the poll scheduler, the Telegram update loop and the REST API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	onboardCmd := &cobra.Command{
		Use:   "onboard",
		Short: "Write the default config and create the data directory",
		Args:  cobra.NoArgs,
		RunE:  runOnboard,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show taskpulse configuration and store counts",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	nudgeCmd := &cobra.Command{
		Use:   "nudge <task-id>",
		Short: "Send a reminder to every assignee of a task right now",
		Args:  cobra.ExactArgs(1),
		RunE:  runNudge,
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users and tasks from a YAML file",
		Args:  cobra.NoArgs,
		RunE:  runSeed,
	}
	seedCmd.Flags().StringP("file", "f", "", "YAML seed file")
	_ = seedCmd.MarkFlagRequired("file")

	root.AddCommand(serveCmd, onboardCmd, statusCmd, nudgeCmd, seedCmd)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the config and installs the logger. The closer flushes
// the log file.
func loadConfig() (*config.Config, io.Closer, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.Setup(cfg.Log), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()

	if !cfg.Telegram.Enabled {
		fmt.Fprintln(cmd.ErrOrStderr(), "Telegram is not configured; reminders will not be delivered. Set TASKPULSE_TELEGRAM_TOKEN or run 'taskpulse onboard'.")
	}

	gw, err := gateway.NewWithOptions(cfg, gatewayOptions)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	return gw.Run(cmd.Context())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "Created config: %s\n", cfgPath)
	} else {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dataDir := filepath.Dir(cfg.Store.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	fmt.Fprintf(out, "Data directory ready: %s\n", dataDir)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Edit %s to set telegram.token and server.apiKey\n", cfgPath)
	fmt.Fprintln(out, "  2. Or set TASKPULSE_TELEGRAM_TOKEN and TASKPULSE_API_KEY")
	fmt.Fprintln(out, "  3. Run 'taskpulse seed -f seed.yaml' then 'taskpulse serve'")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Database: %s\n", cfg.Store.DBPath)
	fmt.Fprintf(out, "Telegram: enabled=%v token=%s\n", cfg.Telegram.Enabled, mask(cfg.Telegram.Token))
	fmt.Fprintf(out, "Poll: tick=%q timezone=%s pageSize=%d\n", cfg.Poll.TickSpec, cfg.Poll.Timezone, cfg.Poll.PageSize)
	if cfg.Pending.RedisURL != "" {
		fmt.Fprintln(out, "Pending replies: redis")
	} else {
		fmt.Fprintln(out, "Pending replies: memory")
	}
	fmt.Fprintf(out, "Server: enabled=%v addr=%s apiKey=%s\n", cfg.Server.Enabled, cfg.Server.Addr(), mask(cfg.Server.APIKey))

	if _, err := os.Stat(cfg.Store.DBPath); err != nil {
		fmt.Fprintln(out, "Store: not found (run 'taskpulse seed' or 'taskpulse serve')")
		return nil
	}
	st, err := store.Open(cmd.Context(), cfg.Store.DBPath)
	if err != nil {
		fmt.Fprintf(out, "Store: error (%v)\n", err)
		return nil
	}
	defer st.Close()

	stats, err := st.Stats(cmd.Context())
	if err != nil {
		fmt.Fprintf(out, "Store: error (%v)\n", err)
		return nil
	}
	fmt.Fprintf(out, "Store: users=%d tasks=%d open_tasks=%d open_polls=%d\n", stats.Users, stats.Tasks, stats.OpenTasks, stats.OpenPolls)
	return nil
}

func runNudge(cmd *cobra.Command, args []string) error {
	taskID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || taskID <= 0 {
		return fmt.Errorf("invalid task id %q", args[0])
	}

	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()
	cfg.Server.Enabled = false

	gw, err := gateway.NewWithOptions(cfg, gatewayOptions)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer gw.Shutdown()

	res, err := gw.Nudger().Nudge(cmd.Context(), taskID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("task %d not found", taskID)
	}
	if err != nil {
		return fmt.Errorf("nudge task %d: %w", taskID, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")

	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()

	f, err := seed.Load(path)
	if err != nil {
		return err
	}
	if err := id.Init(cfg.NodeID); err != nil {
		return fmt.Errorf("init id generator: %w", err)
	}

	ctx := cmd.Context()
	st, err := store.Open(ctx, cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	res, err := seed.Apply(ctx, st, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded: %d users created, %d existing, %d tasks created\n",
		res.UsersCreated, res.UsersExisting, res.TasksCreated)
	return nil
}

func mask(secret string) string {
	switch {
	case secret == "":
		return "not set"
	case len(secret) > 8:
		return secret[:4] + "..." + secret[len(secret)-4:]
	default:
		return "set"
	}
}
