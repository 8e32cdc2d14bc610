package main

import (
	"time"

	"github.com/spf13/cobra"
)

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "List derived cycles, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, user, err := loadService(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		sum, err := svc.Summary(cmd.Context(), user)
		if err != nil {
			return err
		}
		renderCycles(cmd.OutOrStdout(), sum)
		return nil
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Print the predicted next period window",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, user, err := loadService(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		sum, err := svc.Summary(cmd.Context(), user)
		if err != nil {
			return err
		}
		renderPrediction(cmd.OutOrStdout(), sum)
		return nil
	},
}

var calendarMonth string

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Draw one month with flow, complaint and prediction markers",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, user, err := loadService(cmd.Context(), cmd)
		if err != nil {
			return err
		}

		month := svc.Today().Date()
		if calendarMonth != "" {
			month, err = time.Parse("2006-01", calendarMonth)
			if err != nil {
				return err
			}
		}
		view, err := svc.Calendar(cmd.Context(), user, month.Year(), month.Month())
		if err != nil {
			return err
		}
		renderCalendar(cmd.OutOrStdout(), view)
		return nil
	},
}

func init() {
	calendarCmd.Flags().StringVarP(&calendarMonth, "month", "m", "", "month to draw (YYYY-MM), default current month")
}
