// Package cli builds the sentraview command tree. Each subcommand wires the
// engine lazily so commands that fail flag validation never touch the
// database.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	bootstrap "github.com/sentraview/sentraview-core/internal/app"
)

type cliApp struct {
	configPath string

	bootOnce sync.Once
	app      *bootstrap.App
	bootErr  error

	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand returns the sentraview root command bound to the process
// standard streams.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdout, os.Stderr)
}

// NewRootCommandWithIO is the test hook: output lands on the given writers.
func NewRootCommandWithIO(out, errOut io.Writer) *cobra.Command {
	return newRootCommand(out, errOut)
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &cliApp{stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "sentraview",
		Short:         "Security-tool spreadsheet ingestion and anomaly detection",
		Long:          "sentraview ingests spreadsheet exports from security tools (GSuite, MDM, SIEM, EDR, Meraki, SonicWall), serves filtered KPI views, and trains isolation-forest models to flag anomalous days.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file path (default /etc/sentraview/config.yaml)")

	cmd.AddCommand(
		newIngestCmd(a),
		newActivateCmd(a),
		newReadCmd(a),
		newTrainCmd(a),
		newScoreCmd(a),
		newDetectionsCmd(a),
		newTriageCmd(a),
	)

	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		return a.close()
	}
	return cmd
}

// boot builds the engine stack on first use.
func (a *cliApp) boot(ctx context.Context) (*bootstrap.App, error) {
	a.bootOnce.Do(func() {
		a.app, a.bootErr = bootstrap.New(ctx, a.configPath)
	})
	return a.app, a.bootErr
}

func (a *cliApp) close() error {
	if a.app == nil {
		return nil
	}
	return a.app.Close()
}

func (a *cliApp) printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, string(out))
	return err
}
