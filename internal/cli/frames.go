package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/corral/pkg/pipeline"
)

// framesCommand creates the frames command printing computed frame
// geometry for every group in a document.
func (c *CLI) framesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "frames <document>",
		Short: "Compute and print group frame geometry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runFrames(cmd, args[0])
		},
	}
}

func (c *CLI) runFrames(cmd *cobra.Command, name string) error {
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

	fmt.Println(StyleTitle.Render(name))
	printStats(result.Stats.NodeCount, result.Stats.GroupCount, false)
	printNewline()

	if len(result.Frames) == 0 {
		printInfo("No frames")
		return nil
	}
	for _, f := range result.Frames {
		indent := strings.Repeat("  ", f.Depth)
		line := indent + StyleValue.Render(f.Name) + " " +
			StyleNumber.Render(fmt.Sprintf("[%.0f,%.0f %.0fx%.0f]",
				f.Bounds.Left, f.Bounds.Top, f.Bounds.Width, f.Bounds.Height))
		if f.EffectiveDisabled {
			line += " " + StyleWarning.Render("disabled")
		}
		if f.Minimized {
			line += " " + StyleDim.Render("minimized")
		}
		fmt.Println(line)
	}
	return nil
}
