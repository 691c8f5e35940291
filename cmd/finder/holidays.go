package main

import (
	"fmt"
	"time"

	"otvFinder/pkg/calendar"
	"otvFinder/pkg/holiday"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newHolidaysCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "holidays [YYYY-MM]",
		Short: "Print the public holidays the site reports for a month",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the result, so diagnostics go to stderr
			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: "15:04:05"}).
				With().Timestamp().Logger()
			cfg, err := opts.load(cmd, logger)
			if err != nil {
				return err
			}

			month := calendar.FromTime(time.Now())
			if len(args) == 1 {
				if month, err = parseMonth(args[0]); err != nil {
					return err
				}
			}

			set, err := holiday.NewClient(cfg.BaseURL, cfg.HolidayTimeout.Duration).
				ForMonth(cmd.Context(), month.Year, month.Month)
			if err != nil {
				return err
			}
			for _, day := range set.Sorted() {
				fmt.Fprintln(cmd.OutOrStdout(), day)
			}
			return nil
		},
	}
}

func parseMonth(s string) (calendar.Date, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return calendar.Date{}, fmt.Errorf("month must look like 2024-06: %w", err)
	}
	return calendar.FromTime(t), nil
}
