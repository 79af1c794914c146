package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/corral/pkg/document"
	"github.com/matzehuels/corral/pkg/errors"
)

// normalizeCommand creates the normalize command running the boundary
// proxy normalizer on a stored document.
func (c *CLI) normalizeCommand() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "normalize <document>",
		Short: "Normalize a document's boundary wiring",
		Long: `Normalize decomposes every wire crossing group boundaries into
single-hop proxy chains, garbage-collects orphaned proxies, creates
missing gate nodes and reports policy violations. With --write the
normalized graph replaces the stored document.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runNormalize(cmd, args[0], write)
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the normalized graph back to the document store")
	return cmd
}

func (c *CLI) runNormalize(cmd *cobra.Command, name string, write bool) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	runner, err := c.newRunner(cfg, true)
	if err != nil {
		return err
	}
	defer runner.Close()

	prog := newProgress(logger)
	_, state, err := runner.Load(ctx, name)
	if err != nil {
		return err
	}
	report, _, err := runner.Normalize(ctx, state)
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Normalized %s: %d mutations", name, report.Mutations()))

	printKeyValue("rewritten", fmt.Sprintf("%d connections", report.ConnectionsRewritten))
	printKeyValue("proxies", fmt.Sprintf("%d created, %d removed", report.ProxiesCreated, report.ProxiesRemoved))
	printKeyValue("gates", fmt.Sprintf("%d created", report.GatesCreated))
	printKeyValue("corrected", fmt.Sprintf("%d directions, %d types", report.DirectionsCorrected, report.TypesCorrected))
	for _, v := range report.Violations {
		printWarning("%s", errors.UserMessage(v))
	}

	if !write {
		if report.Mutations() > 0 {
			printNextStep("Persist the result", fmt.Sprintf("corral normalize %s --write", name))
		}
		return nil
	}

	defs, err := state.Catalog.List(ctx)
	if err != nil {
		return err
	}
	doc := document.FromState(name, state.Snapshot(), state.Store, defs)
	if err := runner.Documents.Save(ctx, name, doc); err != nil {
		return err
	}
	printSuccess("Wrote normalized document %q", name)
	return nil
}
