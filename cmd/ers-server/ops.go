package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ers/ers/internal/client"
	"github.com/ers/ers/internal/domain/emergency"
)

func newClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		server = defaultServer
	}
	return client.New(strings.TrimRight(server, "/"), zerolog.Nop())
}

func caseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Manage cases on a running server",
	}
	cmd.AddCommand(caseAddCmd(), caseListCmd(), caseStatusCmd(), caseLookupCmd(), caseSimulateCmd())
	return cmd
}

func caseAddCmd() *cobra.Command {
	var in emergency.CaseInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Book a new arriving case",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(in.PatientName) == "" {
				return fmt.Errorf("--name is required")
			}
			c, err := newClient(cmd).AddCase(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printCase(cmd.OutOrStdout(), c)
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.PatientName, "name", "", "patient name")
	f.IntVar(&in.Age, "age", 0, "patient age")
	f.StringVar(&in.BloodPressure, "bp", "", "blood pressure, e.g. 120/80")
	f.IntVar(&in.HeartRate, "heart-rate", 0, "heart rate (bpm)")
	f.Float64Var(&in.Temperature, "temp", 0, "temperature (°F)")
	f.IntVar(&in.OxygenLevel, "oxygen", 0, "oxygen saturation (%)")
	f.StringVar(&in.Injuries, "injuries", "", "injury description")
	f.BoolVar(&in.Critical, "critical", false, "mark the case critical")
	return cmd
}

func caseSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Book a simulated case with generated vitals",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd).SimulateBooking(cmd.Context())
			if err != nil {
				return err
			}
			return printCase(cmd.OutOrStdout(), c)
		},
	}
}

func caseListCmd() *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases in arrival order",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := newClient(cmd).ListCases(cmd.Context(), status, limit, offset)
			if err != nil {
				return err
			}
			if err := printCases(cmd.OutOrStdout(), page.Data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d cases\n", len(page.Data), page.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (Arriving, Admitted, \"Released from ER\")")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (server default when 0)")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func caseStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <case-id> <status>",
		Short: "Move a case to Arriving, Admitted or Released from ER",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := emergency.ParseStatus(strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			c, err := newClient(cmd).SetStatus(cmd.Context(), args[0], string(status))
			if err != nil {
				return err
			}
			return printCase(cmd.OutOrStdout(), c)
		},
	}
}

func caseLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <access-code>",
		Short: "Retrieve a patient's case by access code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := emergency.NormalizeAccessCode(args[0])
			if len(code) != emergency.AccessCodeLength {
				return fmt.Errorf("access code must be %d characters", emergency.AccessCodeLength)
			}
			c, err := newClient(cmd).FindByAccessCode(cmd.Context(), code)
			if err != nil {
				return err
			}
			return printCase(cmd.OutOrStdout(), c)
		},
	}
}

func metricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Read or overwrite the dashboard metrics",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current metrics snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newClient(cmd).Metrics(cmd.Context())
			if err != nil {
				return err
			}
			return printMetrics(cmd.OutOrStdout(), m)
		},
	})
	cmd.AddCommand(metricsSetCmd())
	return cmd
}

func metricsSetCmd() *cobra.Command {
	var (
		arriving, critical, beds int
		avg                      float64
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Overwrite selected metrics; unset flags are left unchanged",
		RunE: func(cmd *cobra.Command, args []string) error {
			var p emergency.MetricsPatch
			f := cmd.Flags()
			if f.Changed("arriving") {
				p.ActiveEmergenciesArriving = &arriving
			}
			if f.Changed("critical") {
				p.CriticalCases = &critical
			}
			if f.Changed("beds") {
				p.AvailableBeds = &beds
			}
			if f.Changed("avg-response") {
				p.AvgResponseTime = &avg
			}
			if p == (emergency.MetricsPatch{}) {
				return fmt.Errorf("at least one of --arriving, --critical, --beds, --avg-response is required")
			}
			m, err := newClient(cmd).SetMetrics(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printMetrics(cmd.OutOrStdout(), m)
		},
	}
	cmd.Flags().IntVar(&arriving, "arriving", 0, "active emergencies arriving")
	cmd.Flags().IntVar(&critical, "critical", 0, "critical cases")
	cmd.Flags().IntVar(&beds, "beds", 0, "available beds")
	cmd.Flags().Float64Var(&avg, "avg-response", 0, "average response time (minutes)")
	return cmd
}
