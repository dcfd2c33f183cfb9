package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"incidentdb/internal/core"
	"incidentdb/pkg/domain"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [workbook]",
		Short: "Check a workbook for orphan rows, unknown codes and rule violations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, log, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			res, err := a.svc.ValidateWorkbook(cmd.Context(), path, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, v := range res.Violations {
				fmt.Fprintf(out, "%-5s %-22s %s\n", v.Severity, v.Rule, v.Message)
			}
			if res.HasBlocking() {
				return fmt.Errorf("workbook has %d problem(s)", len(res.Violations))
			}
			fmt.Fprintf(out, "ok: %d warning(s)\n", len(res.Violations))
			return nil
		},
	}
}

func newListCmd(root *rootOptions) *cobra.Command {
	var from, to, incidentType, priority, city string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List incidents matching a filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.Filter{Equals: map[string]string{}, Contains: map[string]string{}}
			for _, bound := range []struct {
				name, raw string
				dst       *time.Time
			}{{"from", from, &filter.From}, {"to", to, &filter.To}} {
				if bound.raw == "" {
					continue
				}
				t, err := domain.ParseDate(bound.raw)
				if err != nil {
					return fmt.Errorf("--%s: %w", bound.name, err)
				}
				*bound.dst = t
			}
			if incidentType != "" {
				filter.Equals[domain.ColumnIncidentType] = incidentType
			}
			if priority != "" {
				filter.Equals[domain.ColumnResponsePriority] = priority
			}
			if city != "" {
				filter.Contains[domain.ColumnCity] = city
			}

			cfg, log, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, log, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tTYPE\tPRIORITY\tCITY")
			n := 0
			for inc := range a.svc.Search(filter) {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", inc.ID,
					inc.Fields.Text("Date"),
					inc.Fields.Text(domain.ColumnIncidentType),
					inc.Fields.Text(domain.ColumnResponsePriority),
					inc.Fields.Text(domain.ColumnCity))
				n++
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			log.WithField("count", n).Debug("listed incidents")
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first incident date (inclusive)")
	cmd.Flags().StringVar(&to, "to", "", "last incident date (inclusive)")
	cmd.Flags().StringVar(&incidentType, "type", "", "incident type")
	cmd.Flags().StringVar(&priority, "priority", "", "response priority")
	cmd.Flags().StringVar(&city, "city", "", "city contains")
	return cmd
}

func newExportCmd(root *rootOptions) *cobra.Command {
	var (
		out     string
		publish bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the workbook to a new file or publish it to the blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" && !publish {
				return fmt.Errorf("one of --out or --publish is required")
			}
			cfg, log, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, log, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if out != "" {
				if err := a.svc.SaveWorkbookAs(cmd.Context(), out); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			if publish {
				published, err := a.svc.PublishExport(cmd.Context())
				if err != nil {
					return err
				}
				link := published.URL
				if link == "" {
					link = published.Info.Key
				}
				fmt.Fprintln(cmd.OutOrStdout(), link)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination .xlsx path")
	cmd.Flags().BoolVar(&publish, "publish", false, "upload to the configured blob store and print its link")
	return cmd
}

func newReportCmd(root *rootOptions) *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "report INCIDENT_ID",
		Short: "Render the printable report of one incident as HTML or PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid incident id %q", args[0])
			}
			f, err := core.ParseReportFormat(format)
			if err != nil {
				return fmt.Errorf("--format: %w", err)
			}
			cfg, log, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, log, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return writeReport(cmd, a.svc, id, out, f)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to a file instead of stdout")
	cmd.Flags().StringVarP(&format, "format", "f", string(core.ReportHTML), "report format: html or pdf")
	return cmd
}

func writeReport(cmd *cobra.Command, svc *core.Service, id int, path string, format core.ReportFormat) (retErr error) {
	if _, err := svc.Incident(id); err != nil {
		return err
	}
	if path == "" {
		return svc.WriteReport(cmd.Context(), cmd.OutOrStdout(), id, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = cerr
		}
	}()
	return svc.WriteReport(cmd.Context(), f, id, format)
}
