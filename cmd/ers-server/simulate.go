package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ers/ers/internal/domain/emergency"
	"github.com/ers/ers/internal/platform/sandbox"
)

func simulateCmd() *cobra.Command {
	var (
		bookings int
		beds     int
		seed     uint64
		verbose  bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted in-process session against a fresh ledger",
		Long: "Books N simulated cases, admits the first half and releases the admitted ones,\n" +
			"then prints the resulting cases and metrics. No server is needed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bookings < 0 {
				return fmt.Errorf("--bookings must not be negative")
			}
			logger := zerolog.Nop()
			if verbose {
				logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
			}
			return runSimulation(cmd.Context(), cmd.OutOrStdout(), logger, bookings, beds, seed)
		},
	}
	cmd.Flags().IntVar(&bookings, "bookings", 6, "number of simulated bookings")
	cmd.Flags().IntVar(&beds, "beds", 10, "available beds at the start")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for generated vitals (0 = time based)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log ledger events to stderr")
	return cmd
}

func runSimulation(ctx context.Context, w io.Writer, logger zerolog.Logger, bookings, beds int, seed uint64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	svc := emergency.NewService(
		emergency.NewLedger(emergency.Metrics{AvailableBeds: beds, AvgResponseTime: 8.5}),
		logger,
	)
	svc.SetBookingGenerator(sandbox.NewGenerator(seed))

	cases, err := sandbox.NewSeeder(svc).Simulate(ctx, bookings)
	if err != nil {
		return err
	}

	admitted := cases[:len(cases)/2]
	for _, c := range admitted {
		if _, err := svc.SetStatus(ctx, c.ID, emergency.StatusAdmitted); err != nil {
			return fmt.Errorf("admitting %s: %w", c.ID, err)
		}
	}
	for _, c := range admitted {
		if _, err := svc.SetStatus(ctx, c.ID, emergency.StatusReleasedFromER); err != nil {
			return fmt.Errorf("releasing %s: %w", c.ID, err)
		}
	}

	all, _, err := svc.ListCases(ctx, "", 0, 0)
	if err != nil {
		return err
	}
	if err := printCases(w, all); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return printMetrics(w, svc.Metrics(ctx))
}

func printCases(w io.Writer, cases []emergency.Case) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tPATIENT\tAGE\tBP\tHR\tTEMP\tO2\tCRITICAL\tSTATUS\tID")
	for _, c := range cases {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%.1f\t%d\t%t\t%s\t%s\n",
			c.AccessCode, c.PatientName, c.Age, c.BloodPressure, c.HeartRate,
			c.Temperature, c.OxygenLevel, c.Critical, c.Status, c.ID)
	}
	return tw.Flush()
}

func printMetrics(w io.Writer, m emergency.Metrics) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Active emergencies arriving\t%d\n", m.ActiveEmergenciesArriving)
	fmt.Fprintf(tw, "Critical cases\t%d\n", m.CriticalCases)
	fmt.Fprintf(tw, "Available beds\t%d\n", m.AvailableBeds)
	fmt.Fprintf(tw, "Avg response time\t%.1f min\n", m.AvgResponseTime)
	return tw.Flush()
}

func printCase(w io.Writer, c emergency.Case) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", c.ID)
	fmt.Fprintf(tw, "Patient\t%s\n", c.PatientName)
	fmt.Fprintf(tw, "Age\t%d\n", c.Age)
	fmt.Fprintf(tw, "Blood pressure\t%s\n", c.BloodPressure)
	fmt.Fprintf(tw, "Heart rate\t%d bpm\n", c.HeartRate)
	fmt.Fprintf(tw, "Temperature\t%.1f °F\n", c.Temperature)
	fmt.Fprintf(tw, "Oxygen level\t%d%%\n", c.OxygenLevel)
	fmt.Fprintf(tw, "Injuries\t%s\n", c.Injuries)
	fmt.Fprintf(tw, "Arrival\t%s\n", c.ArrivalTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(tw, "Status\t%s\n", c.Status)
	fmt.Fprintf(tw, "Critical\t%t\n", c.Critical)
	fmt.Fprintf(tw, "Access code\t%s\n", c.AccessCode)
	if c.History != "" {
		fmt.Fprintf(tw, "History\t%s\n", c.History)
	}
	return tw.Flush()
}
