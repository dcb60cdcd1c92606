package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/OrlandoBitencourt/flagcache"
	"github.com/OrlandoBitencourt/flagcache/internal/logging"
	"github.com/OrlandoBitencourt/flagcache/internal/storage"
	"github.com/OrlandoBitencourt/flagcache/internal/transport"
	"github.com/spf13/cobra"
)

// globalOptions are the flags shared by every subcommand
type globalOptions struct {
	clientID    string
	apiURL      string
	environment string
	debug       bool

	userID     string
	email      string
	orgID      string
	teamID     string
	properties map[string]string

	storageDir string
	redisURL   string
	rulesPath  string

	timeout time.Duration
	output  string
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "flagcache",
		Short:         "Resolve feature flags through the flag cache",
		Long:          `Resolve feature flags against an evaluation service, a storage snapshot or a local rule file. Unset flags fall back to FLAGCACHE_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.clientID, "client-id", "", "project client id (FLAGCACHE_CLIENT_ID)")
	pf.StringVar(&g.apiURL, "api-url", "", "evaluation service root (FLAGCACHE_API_URL)")
	pf.StringVar(&g.environment, "environment", "", "environment name (FLAGCACHE_ENVIRONMENT)")
	pf.BoolVar(&g.debug, "debug", false, "log at debug level")
	pf.StringVar(&g.userID, "user-id", "", "user id to resolve for")
	pf.StringVar(&g.email, "email", "", "user email")
	pf.StringVar(&g.orgID, "org-id", "", "organization id")
	pf.StringVar(&g.teamID, "team-id", "", "team id")
	pf.StringToStringVar(&g.properties, "property", nil, "user property as key=value; repeatable")
	pf.StringVar(&g.storageDir, "storage-dir", "", "directory holding the flag snapshot")
	pf.StringVar(&g.redisURL, "redis-url", "", "redis URL holding the flag snapshot")
	pf.StringVar(&g.rulesPath, "rules", "", "evaluate locally from a YAML rule file instead of the service")
	pf.DurationVar(&g.timeout, "timeout", 10*time.Second, "overall timeout")
	pf.StringVarP(&g.output, "output", "o", "table", "output format: table or json")

	rootCmd.AddCommand(getGetCmd(g))
	rootCmd.AddCommand(getListCmd(g))
	rootCmd.AddCommand(getEvalCmd(g))
	rootCmd.AddCommand(getServeCmd(g))

	return rootCmd
}

// config merges environment variables with explicitly set flags
func (g *globalOptions) config(cmd *cobra.Command) (flagcache.Config, error) {
	cfg, err := flagcache.LoadConfigFromEnv()
	if err != nil {
		return flagcache.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("client-id") {
		cfg.ClientID = g.clientID
	}
	if flags.Changed("api-url") {
		cfg.APIURL = g.apiURL
	}
	if flags.Changed("environment") {
		cfg.Environment = g.environment
	}
	if flags.Changed("debug") {
		cfg.Debug = g.debug
	}

	// local rule files need no project
	if cfg.ClientID == "" && g.rulesPath != "" {
		cfg.ClientID = "local"
	}

	cfg.User = g.user()
	cfg.AutoFetch = false
	return cfg, nil
}

func (g *globalOptions) user() *flagcache.User {
	u := &flagcache.User{
		UserID:         g.userID,
		Email:          g.email,
		OrganizationID: g.orgID,
		TeamID:         g.teamID,
	}
	if len(g.properties) > 0 {
		u.Properties = make(map[string]any, len(g.properties))
		for k, v := range g.properties {
			u.Properties[k] = v
		}
	}
	if u.IsZero() {
		return nil
	}
	return u
}

// newManager builds a manager from the flags. The returned func releases it.
func (g *globalOptions) newManager(ctx context.Context, cmd *cobra.Command) (*flagcache.Manager, func(), error) {
	cfg, err := g.config(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(logging.Config{Debug: cfg.Debug, Development: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	opts := []flagcache.Option{flagcache.WithLogger(logger)}
	var closers []func()

	if g.rulesPath != "" {
		rules, err := transport.LoadRules(g.rulesPath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, flagcache.WithTransport(rules))
	}

	switch {
	case g.redisURL != "":
		rs, err := storage.ConnectRedis(ctx, g.redisURL, cfg.ClientID)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = rs.Close() })
		opts = append(opts, flagcache.WithStorage(rs))
	case g.storageDir != "":
		disk, err := storage.NewDiskStorage(g.storageDir)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, flagcache.WithStorage(disk))
	default:
		cfg.SkipStorage = true
	}

	m, err := flagcache.New(cfg, opts...)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, nil, err
	}

	release := func() {
		m.Destroy()
		m.Wait()
		for _, c := range closers {
			c()
		}
		_ = logger.Sync()
	}
	return m, release, nil
}

// printFlags writes flags sorted by key in the chosen format
func printFlags(w io.Writer, format string, flags map[string]flagcache.FlagResult) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(flags)
	}

	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tENABLED\tVALUE\tVARIANT\tREASON")
	for _, k := range keys {
		r := flags[k]
		variant := r.Variant
		if variant == "" {
			variant = "-"
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", k, r.Enabled, r.Value, variant, r.Reason)
	}
	return tw.Flush()
}
