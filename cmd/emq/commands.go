package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"EMSpark/internal/di"
	"EMSpark/internal/domain/models"
	"EMSpark/internal/services/query"
	"EMSpark/pkg/config"
)

type rootOptions struct {
	configPath string
	today      string
	market     string
}

func newRootCmd(out io.Writer, now func() time.Time) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "emq",
		Short: "Resolve spot-market questions into query specs",
		Long: `emq runs the rule-based query parser used by the EMSpark service.

Examples:
  emq parse "RTM 6-8 hrs for 14 Nov 2025"
  emq parse --today 2025-11-19 "DAM for this week excluding Sunday"
  emq shift --years -1 "GDAM 20-50 slots on 12 Oct 2024"`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config/config.yaml", "config file path (missing file means defaults)")
	root.PersistentFlags().StringVar(&opts.today, "today", "", "pretend today is this date (YYYY-MM-DD)")
	root.PersistentFlags().StringVarP(&opts.market, "market", "m", "", "force a market (DAM, GDAM, RTM)")

	root.AddCommand(newParseCmd(opts, now), newShiftCmd(opts, now))
	return root
}

func newParseCmd(opts *rootOptions, now func() time.Time) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <question>",
		Short: "Print the specs a question resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.parser(now)
			if err != nil {
				return err
			}
			specs, err := opts.resolve(p, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), specs)
		},
	}
}

func newShiftCmd(opts *rootOptions, now func() time.Time) *cobra.Command {
	var years int
	cmd := &cobra.Command{
		Use:   "shift <question>",
		Short: "Resolve a question and move every spec by whole years",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.parser(now)
			if err != nil {
				return err
			}
			specs, err := opts.resolve(p, strings.Join(args, " "))
			if err != nil {
				return err
			}
			shifted := make([]models.QuerySpec, 0, len(specs))
			for _, s := range specs {
				out, ok := query.ShiftYears(s, years)
				if !ok {
					return fmt.Errorf("cannot shift %s by %d years", s, years)
				}
				shifted = append(shifted, out)
			}
			return printJSON(cmd.OutOrStdout(), shifted)
		},
	}
	cmd.Flags().IntVarP(&years, "years", "y", -1, "years to add (negative moves back)")
	return cmd
}

func (o *rootOptions) parser(now func() time.Time) (*query.Parser, error) {
	cfg, err := config.LoadWithEnv(o.configPath)
	if err != nil {
		return nil, err
	}
	qc, err := di.ParserConfig(cfg)
	if err != nil {
		return nil, err
	}
	clock := now
	if o.today != "" {
		d, err := models.ParseDate(o.today)
		if err != nil {
			return nil, fmt.Errorf("--today: %w", err)
		}
		fixed := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, qc.Location)
		clock = func() time.Time { return fixed }
	}
	return query.NewParser(qc, query.WithClock(clock)), nil
}

func (o *rootOptions) resolve(p *query.Parser, text string) ([]models.QuerySpec, error) {
	var specs []models.QuerySpec
	if o.market != "" {
		m, ok := models.ParseMarket(o.market)
		if !ok {
			return nil, fmt.Errorf("--market: unknown market %q", o.market)
		}
		specs = p.ParseForMarket(text, m)
	} else {
		specs = p.Parse(text)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("could not resolve %q", text)
	}
	return specs, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
