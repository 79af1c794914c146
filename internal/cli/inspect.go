package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/pipeline"
)

// inspectCommand creates the inspect command showing a document's group
// hierarchy, disabled set and compound definitions.
func (c *CLI) inspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <document>",
		Short: "Show a document's group hierarchy and stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInspect(cmd, args[0])
		},
	}
}

func (c *CLI) runInspect(cmd *cobra.Command, name string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	runner, err := c.newRunner(cfg, true)
	if err != nil {
		return err
	}
	defer runner.Close()

	result, err := runner.Execute(cmd.Context(), pipeline.Options{
		Document: name,
		Geometry: cfg.FrameOptions(),
	})
	if err != nil {
		return err
	}
	store := result.State.Store

	fmt.Println(StyleTitle.Render(name))
	printStats(result.Stats.NodeCount, result.Stats.GroupCount, false)
	printNewline()

	if store.Len() == 0 {
		printInfo("No groups")
	}
	for _, root := range store.Roots() {
		printGroupTree(store, root, 0)
	}

	if disabled := store.DisabledNodeIDs(); len(disabled) > 0 {
		printNewline()
		printKeyValue("disabled", fmt.Sprintf("%d nodes", len(disabled)))
	}
	if defs := result.Document.Definitions; len(defs) > 0 {
		printNewline()
		fmt.Println(StyleHighlight.Render("Definitions"))
		for _, def := range defs {
			printDetail("%s (%d ports)", def.Name, len(def.Ports))
		}
	}
	for _, v := range result.Report.Violations {
		printWarning("%s", errors.UserMessage(v))
	}

	printNewline()
	printNextStep("Render it", fmt.Sprintf("corral render %s", name))
	return nil
}

// printGroupTree prints the group subtree rooted at gid, one line per
// group, indented by depth.
func printGroupTree(store *group.Store, gid group.ID, depth int) {
	g, ok := store.Get(gid)
	if !ok {
		return
	}

	indent := strings.Repeat("  ", depth)
	line := indent + StyleValue.Render(g.Name) +
		StyleDim.Render(fmt.Sprintf(" · %d nodes", len(g.NodeIDs)))
	if store.EffectiveDisabled(gid) {
		line += " " + StyleWarning.Render("disabled")
	}
	if g.Minimized {
		line += " " + StyleDim.Render("minimized")
	}
	fmt.Println(line)

	for _, child := range store.Children(gid) {
		printGroupTree(store, child, depth+1)
	}
}
