package main

import (
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "os"
    "os/signal"
    "strings"
    "syscall"

    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
    "github.com/spf13/cobra"

    "metalprice/internal/app"
    "metalprice/internal/config"
    "metalprice/internal/logging"
    "metalprice/internal/provider"
    "metalprice/internal/store"
)

type cli struct {
    configPath string
    currency   string
    out        io.Writer

    cfg config.Config
    log zerolog.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
    c := &cli{out: out}

    root := &cobra.Command{
        Use:          "metalctl",
        Short:        "Fetch, store and apply metal spot prices",
        Version:      Version,
        SilenceUsage: true,
        PersistentPreRunE: func(*cobra.Command, []string) error {
            return c.load()
        },
    }
    root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("CONFIG_FILE"), "config file (JSON or YAML)")
    root.PersistentFlags().StringVar(&c.currency, "currency", "", "ISO currency code (defaults to the configured currency)")

    refreshCmd := &cobra.Command{
        Use:   "refresh",
        Short: "Fetch gold and platinum once and persist them",
        Args:  cobra.NoArgs,
        RunE:  c.refresh,
    }
    refreshCmd.Flags().Bool("manual", false, "record the save as manual rather than scheduled")

    scheduleCmd := &cobra.Command{
        Use:   "schedule",
        Short: "Refresh on a cron schedule until interrupted",
        Args:  cobra.NoArgs,
        RunE:  c.schedule,
    }
    scheduleCmd.Flags().String("cron", "", "five-field cron expression (defaults to schedule.cron)")

    root.AddCommand(
        refreshCmd,
        scheduleCmd,
        &cobra.Command{
            Use:   "spot [metal]",
            Short: "Resolve one metal through cache, API, stale cache and defaults",
            Args:  cobra.ExactArgs(1),
            RunE:  c.spot,
        },
        &cobra.Command{
            Use:   "dump",
            Short: "Print the raw latest-rates response body",
            Args:  cobra.NoArgs,
            RunE:  c.dump,
        },
        &cobra.Command{
            Use:   "reprice",
            Short: "Price every catalog product and print the results as JSON",
            Args:  cobra.NoArgs,
            RunE:  c.reprice,
        },
    )
    return root
}

func (c *cli) load() error {
    cfg, err := config.Load(c.configPath)
    if err != nil { return err }
    if c.currency != "" { cfg.Currency = strings.ToUpper(strings.TrimSpace(c.currency)) }
    c.cfg = cfg
    c.log = logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
    return nil
}

func (c *cli) app() (*app.App, error) {
    return app.New(c.cfg, c.log, nil)
}

func (c *cli) refresh(cmd *cobra.Command, _ []string) error {
    a, err := c.app()
    if err != nil { return err }
    defer a.Close()

    source := store.SourceScheduled
    if manual, _ := cmd.Flags().GetBool("manual"); manual { source = store.SourceManual }

    set, err := a.Refresher.Refresh(cmd.Context(), c.cfg.Currency, source)
    if err != nil { return err }
    return c.printJSON(set)
}

func (c *cli) schedule(cmd *cobra.Command, _ []string) error {
    expr, _ := cmd.Flags().GetString("cron")
    if expr == "" { expr = c.cfg.Schedule.Cron }

    a, err := c.app()
    if err != nil { return err }
    defer a.Close()

    ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    cl := cronLogger{log: c.log}
    sched := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
    _, err = sched.AddFunc(expr, func() {
        if _, err := a.Refresher.Refresh(ctx, c.cfg.Currency, store.SourceScheduled); err != nil {
            c.log.Error().Err(err).Msg("scheduled refresh failed")
        }
    })
    if err != nil { return fmt.Errorf("invalid cron expression %q: %w", expr, err) }

    c.log.Info().Str("cron", expr).Str("currency", c.cfg.Currency).Msg("refresh schedule started")
    sched.Start()
    <-ctx.Done()
    <-sched.Stop().Done()
    return nil
}

func (c *cli) spot(cmd *cobra.Command, args []string) error {
    metal, ok := provider.ParseMetal(args[0])
    if !ok { return fmt.Errorf("unknown metal %q", args[0]) }

    a, err := c.app()
    if err != nil { return err }
    defer a.Close()

    res := a.Spot.FetchSpotPrice(cmd.Context(), metal, c.cfg.Currency)
    if res.Err != nil { c.log.Warn().Err(res.Err).Str("tier", string(res.Tier)).Msg("spot price degraded") }
    return c.printJSON(res)
}

func (c *cli) dump(cmd *cobra.Command, _ []string) error {
    a, err := c.app()
    if err != nil { return err }
    defer a.Close()

    if a.Client == nil { return provider.ErrConfiguration }
    body, err := a.Client.Raw(cmd.Context(), c.cfg.Currency)
    if err != nil { return err }
    _, err = fmt.Fprintln(c.out, strings.TrimSpace(string(body)))
    return err
}

func (c *cli) reprice(cmd *cobra.Command, _ []string) error {
    a, err := c.app()
    if err != nil { return err }
    defer a.Close()

    if a.Catalog == nil { return errors.New("no catalog configured (set catalog.dsn or CATALOG_DSN)") }
    products, err := a.Catalog.ListProducts(cmd.Context())
    if err != nil { return err }
    return c.printJSON(a.Updater.PriceAll(cmd.Context(), products))
}

func (c *cli) printJSON(v any) error {
    enc := json.NewEncoder(c.out)
    enc.SetIndent("", "  ")
    return enc.Encode(v)
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
    l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
    l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

var _ cron.Logger = cronLogger{}
