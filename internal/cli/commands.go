package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentraview/sentraview-core/internal/filter"
	"github.com/sentraview/sentraview-core/internal/ingest"
	"github.com/sentraview/sentraview-core/internal/record"
)

func newIngestCmd(a *cliApp) *cobra.Command {
	var (
		company string
		file    string
		tool    string
		fast    bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Upload a spreadsheet export",
		Long:  "Parses one .xlsx export and stores it as an inactive dataset. The declared --tool wins over sheet-name detection; without it the workbook is classified by its sheet names.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.boot(cmd.Context())
			if err != nil {
				return err
			}

			blob, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read upload: %w", err)
			}
			if max := app.Config.Ingest.MaxUploadMB; max > 0 && len(blob) > max<<20 {
				return fmt.Errorf("upload is %d bytes, limit is %d MB", len(blob), max)
			}

			declared := record.ToolUnknown
			if tool != "" {
				declared = record.ParseTool(tool)
				if !declared.Valid() {
					return fmt.Errorf("unknown tool %q", tool)
				}
			}
			mode := ingest.ModeFull
			if fast {
				mode = ingest.ModeFast
			}

			id, err := app.Engine.Ingest(cmd.Context(), company, blob, declared, mode)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "dataset %s stored (inactive); run `sentraview activate --id %s` to serve it\n", id, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company identifier")
	cmd.Flags().StringVar(&file, "file", "", "path to the .xlsx export")
	cmd.Flags().StringVar(&tool, "tool", "", "declared tool (gsuite, mdm, siem, edr, meraki, sonicwall)")
	cmd.Flags().BoolVar(&fast, "fast", false, "cap the largest sheet instead of reading it fully")
	cmd.MarkFlagRequired("company")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newActivateCmd(a *cliApp) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Make an uploaded dataset the active one for its tool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.boot(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Engine.Activate(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "dataset %s is now active\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "dataset ID")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newReadCmd(a *cliApp) *cobra.Command {
	var (
		company   string
		tool      string
		timeRange string
		from      string
		to        string
		agg       string
		weekends  bool
	)
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Print a filtered view of the active datasets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.boot(cmd.Context())
			if err != nil {
				return err
			}

			if timeRange == "" {
				timeRange = app.Config.Filter.DefaultRange
			}
			if !cmd.Flags().Changed("weekends") {
				weekends = app.Config.Filter.IncludeWeekends
			}

			spec := filter.Spec{
				TimeRange:       filter.TimeRange(timeRange),
				Aggregation:     filter.Aggregation(agg),
				IncludeWeekends: weekends,
			}
			if tool != "" {
				spec.DataSource = record.ParseTool(tool)
				if !spec.DataSource.Valid() {
					return fmt.Errorf("unknown tool %q", tool)
				}
			}
			if spec.TimeRange == filter.RangeCustom {
				if spec.CustomFrom, err = time.Parse("2006-01-02", from); err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
				if spec.CustomTo, err = time.Parse("2006-01-02", to); err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
			}

			view, err := app.Engine.Read(cmd.Context(), company, spec)
			if err != nil {
				return err
			}
			return a.printJSON(view)
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company identifier")
	cmd.Flags().StringVar(&tool, "tool", "", "restrict to one tool")
	cmd.Flags().StringVar(&timeRange, "range", "", "today, week, month, quarter, year, all, or custom")
	cmd.Flags().StringVar(&from, "from", "", "custom range start, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "custom range end (exclusive), YYYY-MM-DD")
	cmd.Flags().StringVar(&agg, "agg", "daily", "aggregation: daily, weekly, monthly")
	cmd.Flags().BoolVar(&weekends, "weekends", true, "keep weekend rows in aggregated views")
	cmd.MarkFlagRequired("company")
	return cmd
}

func newTrainCmd(a *cliApp) *cobra.Command {
	var company, tool string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train an anomaly model on the active dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.boot(cmd.Context())
			if err != nil {
				return err
			}
			t, err := parseTool(tool)
			if err != nil {
				return err
			}
			modelID, err := app.Engine.Train(cmd.Context(), company, t)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "model %s trained and active for %s/%s\n", modelID, company, t)
			return nil
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company identifier")
	cmd.Flags().StringVar(&tool, "tool", "", "tool the model covers")
	cmd.MarkFlagRequired("company")
	cmd.MarkFlagRequired("tool")
	return cmd
}

func newScoreCmd(a *cliApp) *cobra.Command {
	var company, tool string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score the active dataset with the active model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.boot(cmd.Context())
			if err != nil {
				return err
			}
			t, err := parseTool(tool)
			if err != nil {
				return err
			}
			detections, err := app.Engine.Score(cmd.Context(), company, t)
			if err != nil {
				return err
			}
			if len(detections) == 0 {
				fmt.Fprintln(a.stdout, "no anomalous days")
				return nil
			}
			return a.printJSON(detections)
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company identifier")
	cmd.Flags().StringVar(&tool, "tool", "", "tool the model covers")
	cmd.MarkFlagRequired("company")
	cmd.MarkFlagRequired("tool")
	return cmd
}

func newDetectionsCmd(a *cliApp) *cobra.Command {
	var modelID string
	cmd := &cobra.Command{
		Use:   "detections",
		Short: "List a model's detections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.boot(cmd.Context())
			if err != nil {
				return err
			}
			detections, err := app.Store.ListDetections(cmd.Context(), modelID)
			if err != nil {
				return err
			}
			return a.printJSON(detections)
		},
	}
	cmd.Flags().StringVar(&modelID, "model", "", "model ID")
	cmd.MarkFlagRequired("model")
	return cmd
}

func newTriageCmd(a *cliApp) *cobra.Command {
	var (
		id     int64
		status string
	)
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Advance a detection through the triage workflow",
		Long:  "Moves one detection to a new triage status. Valid moves: new → investigating, investigating → confirmed, false_positive, or resolved.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.boot(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Store.UpdateDetectionStatus(cmd.Context(), id, status); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "detection %d is now %s\n", id, status)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "detection ID")
	cmd.Flags().StringVar(&status, "status", "", "investigating, confirmed, false_positive, or resolved")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("status")
	return cmd
}

func parseTool(name string) (record.ToolType, error) {
	t := record.ParseTool(name)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return t, nil
}
