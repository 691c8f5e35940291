package main

import (
	"fmt"

	"otvFinder/internal/browser"
	"otvFinder/internal/finder"
	"otvFinder/pkg/config"
	"otvFinder/pkg/holiday"
	"otvFinder/pkg/line"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	configPath   string
	noNotify     bool
	headless     bool
	dumpCalendar bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "finder",
		Short:         "Find the earliest free appointment at the Karlsruhe Ausländerbehörde",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if opts.dumpCalendar {
				level = zerolog.DebugLevel
			}
			logger, closeLog := newLogger(level)
			defer closeLog()

			cfg, err := opts.load(cmd, logger)
			if err != nil {
				return err
			}
			return run(cmd, cfg, logger)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", config.FileName, "config file, merged over the defaults")
	root.Flags().BoolVar(&opts.noNotify, "no-notify", false, "do not send a LINE notification")
	root.Flags().BoolVar(&opts.headless, "headless", true, "run Chrome without a window")
	root.Flags().BoolVar(&opts.dumpCalendar, "dump-calendar", false, "log the calendar widget days (debug level)")

	root.AddCommand(newHolidaysCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// load reads the config and lets explicitly set flags win over it
func (o *options) load(cmd *cobra.Command, logger zerolog.Logger) (config.Config, error) {
	cfg, err := config.Load(o.configPath, logger)
	if err != nil {
		return config.Config{}, fmt.Errorf("❌ Failed to load config: %w", err)
	}
	if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
		cfg.Headless = o.headless
	}
	if o.noNotify {
		cfg.NoNotify = true
	}
	return cfg, nil
}

func run(cmd *cobra.Command, cfg config.Config, logger zerolog.Logger) error {
	ctx := cmd.Context()

	if cfg.NoNotify {
		logger.Info().Msg("Notifications disabled (--no-notify flag is set)")
	} else if !cfg.NotifyEnabled() {
		logger.Warn().
			Bool("token", cfg.LineChannelToken != "").
			Bool("user", cfg.LineUserID != "").
			Msg("⚠️ LINE credentials not set properly, notifications will be disabled")
	}

	chrome, err := browser.NewChrome(cfg.Headless, logger)
	if err != nil {
		return err
	}
	defer chrome.Close()

	pages := browser.NewClient(chrome, cfg.LoadTimeout.Duration, logger)
	holidays := holiday.NewClient(cfg.BaseURL, cfg.HolidayTimeout.Duration)

	result, err := finder.New(cfg, pages, holidays, logger).Run(ctx)
	if err != nil {
		return err
	}
	if err := finder.Report(cmd.OutOrStdout(), result); err != nil {
		return err
	}

	if result.Found && cfg.NotifyEnabled() {
		notify(cmd, cfg, result, logger)
	}
	return nil
}

// notify failures are logged, the search result stands on its own
func notify(cmd *cobra.Command, cfg config.Config, result finder.Result, logger zerolog.Logger) {
	earlier := make([]line.Day, len(result.Earlier))
	for i, e := range result.Earlier {
		earlier[i] = line.Day{Date: e.Date.String(), Times: e.Times}
	}
	first := line.Day{Date: result.First.String(), Times: result.Times}

	client := line.NewClient(cfg.LineChannelToken, cfg.LineUserID, finder.ServicesURL(cfg), logger)
	if err := client.NotifyEarliest(cmd.Context(), first, earlier); err != nil {
		logger.Error().Err(err).Msg("Error sending notification")
	}
}
