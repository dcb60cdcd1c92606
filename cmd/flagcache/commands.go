package main

import (
	"context"
	"fmt"

	"github.com/OrlandoBitencourt/flagcache"
	"github.com/OrlandoBitencourt/flagcache/internal/transport"
	"github.com/spf13/cobra"
)

func getGetCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <flag-key>...",
		Short: "Resolve flags in one batched request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			return runGet(ctx, cmd, g, args)
		},
	}
}

func getListCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Fetch and print every flag for the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			return runList(ctx, cmd, g)
		},
	}
}

func getEvalCmd(g *globalOptions) *cobra.Command {
	evalCmd := &cobra.Command{
		Use:   "eval [flag-key]...",
		Short: "Evaluate a rule file locally without contacting the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.rulesPath == "" {
				return fmt.Errorf("--rules is required")
			}
			return runEval(cmd, g, args)
		},
	}
	return evalCmd
}

// runGet resolves keys concurrently so they share one batch window
func runGet(ctx context.Context, cmd *cobra.Command, g *globalOptions, keys []string) error {
	m, release, err := g.newManager(ctx, cmd)
	if err != nil {
		return err
	}
	defer release()

	type outcome struct {
		key    string
		result flagcache.FlagResult
		err    error
	}

	ch := make(chan outcome, len(keys))
	for _, key := range keys {
		go func() {
			res, err := m.GetFlag(ctx, key, nil)
			ch <- outcome{key: key, result: res, err: err}
		}()
	}

	flags := make(map[string]flagcache.FlagResult, len(keys))
	var firstErr error
	for range keys {
		o := <-ch
		if o.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to resolve %q: %w", o.key, o.err)
			}
			continue
		}
		flags[o.key] = o.result
	}

	if err := printFlags(cmd.OutOrStdout(), g.output, flags); err != nil {
		return err
	}
	return firstErr
}

func runList(ctx context.Context, cmd *cobra.Command, g *globalOptions) error {
	m, release, err := g.newManager(ctx, cmd)
	if err != nil {
		return err
	}
	defer release()

	m.FetchAllFlags(ctx, nil)
	if err := ctx.Err(); err != nil {
		return err
	}

	return printFlags(cmd.OutOrStdout(), g.output, m.GetMemoryFlags())
}

// runEval bypasses the manager; it prints exactly what the rule file yields
func runEval(cmd *cobra.Command, g *globalOptions, keys []string) error {
	rules, err := transport.LoadRules(g.rulesPath)
	if err != nil {
		return err
	}

	cfg, err := g.config(cmd)
	if err != nil {
		return err
	}

	flags, err := rules.Fetch(cmd.Context(), transport.Request{
		Keys: keys,
		Params: transport.Params{
			ClientID:    cfg.ClientID,
			Environment: cfg.Environment,
			User:        cfg.User,
		},
	})
	if err != nil {
		return err
	}

	for _, key := range keys {
		if _, ok := flags[key]; !ok {
			fmt.Fprintf(cmd.ErrOrStderr(), "flag %q is not defined in %s\n", key, g.rulesPath)
		}
	}

	return printFlags(cmd.OutOrStdout(), g.output, flags)
}
