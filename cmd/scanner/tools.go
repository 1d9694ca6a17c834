package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gregtusar/termarb/pkg/caucion"
	"github.com/gregtusar/termarb/pkg/models"
	"github.com/gregtusar/termarb/pkg/notify"
	"github.com/gregtusar/termarb/pkg/oms"
	"github.com/gregtusar/termarb/pkg/scanner"
)

func newScanCmd() *cobra.Command {
	var snapshots string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan once over market data read from a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(snapshots)
			if err != nil {
				return fmt.Errorf("read snapshots: %w", err)
			}
			snaps, err := oms.ParseMarketData(raw, time.Now())
			if err != nil {
				return fmt.Errorf("parse snapshots: %w", err)
			}

			svc := scanner.New(serviceOptions(cfg), scanner.Deps{
				Registry:  buildRegistry(cfg, logger),
				Evaluator: newEvaluator(),
				Logger:    logger,
			})
			applied := svc.Apply(snaps)
			logger.WithField("applied", applied).Info("Applied snapshots")

			out := notify.NewConsoleWriter(cmd.OutOrStdout())
			out.Table(svc.Scan(cmd.Context(), scanner.TriggerManual))
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshots, "snapshots", "", "JSON file with market data in any feed message shape")
	_ = cmd.MarkFlagRequired("snapshots")
	return cmd
}

func newCaucionCmd() *cobra.Command {
	var (
		days   int
		rate   float64
		amount float64
	)
	cmd := &cobra.Command{
		Use:   "caucion",
		Short: "Print the cost breakdown of a financing leg",
		Long:  "Negative days place funds (colocadora), positive days borrow (tomadora).",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("rate") {
				rate = cfg.Trading.CaucionRate
			}
			calc := caucion.NewCalculator(models.BYMASchedule())
			res, err := calc.Calculate(caucion.Params{
				Days:            days,
				AnnualRate:      rate,
				Notional:        amount,
				BorrowerFeeRate: cfg.Trading.BorrowerFeeRate,
				LenderFeeRate:   cfg.Trading.LenderFeeRate,
			})
			if err != nil {
				return err
			}
			notify.NewConsoleWriter(cmd.OutOrStdout()).Caucion(res)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 1, "financing days")
	cmd.Flags().Float64Var(&rate, "rate", 0, "annual rate in percent (default from config)")
	cmd.Flags().Float64Var(&amount, "amount", 100000, "notional")
	return cmd
}

func newSymbolsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "Print the market data subscription manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := scanner.New(serviceOptions(cfg), scanner.Deps{
				Registry: buildRegistry(cfg, logger),
				Logger:   logger,
			})
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(svc.Subscriptions())
			}
			for _, sym := range svc.Symbols() {
				fmt.Fprintln(cmd.OutOrStdout(), sym)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the subscription messages as JSON")
	return cmd
}
