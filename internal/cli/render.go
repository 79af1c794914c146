package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/pipeline"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output   string   // output file path (or base path for multiple formats)
	formats  []string // output formats: "dot", "svg", "png"
	detailed bool     // label edges with port names
	refresh  bool     // bypass the artifact cache
	noCache  bool     // disable the artifact cache entirely
}

// renderCommand creates the render command for exporting grouped graphs.
// Each group becomes a nested DOT cluster; disabled groups render dimmed.
func (c *CLI) renderCommand() *cobra.Command {
	var formatsStr string
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render <document>",
		Short: "Render a grouped graph to DOT, SVG, or PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.formats = parseFormats(formatsStr)
			if err := pipeline.ValidateFormats(opts.formats); err != nil {
				return err
			}
			return c.runRender(cmd, args[0], &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): svg (default), dot, png (comma-separated)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "label edges with port names")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass the artifact cache")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the artifact cache")

	return cmd
}

func (c *CLI) runRender(cmd *cobra.Command, name string, opts *renderOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)
	logger.Infof("Rendering %s", name)

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	runner, err := c.newRunner(cfg, opts.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	spin := newSpinnerWithContext(ctx, fmt.Sprintf("rendering %s", name))
	spin.Start()
	result, err := runner.Execute(ctx, pipeline.Options{
		Document: name,
		Formats:  opts.formats,
		Detailed: opts.detailed,
		Refresh:  opts.refresh,
		Geometry: cfg.FrameOptions(),
	})
	spin.Stop()
	if spin.Cancelled() {
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	base := basePath(opts.output, name)
	for _, format := range opts.formats {
		path := base + "." + format
		if err := os.WriteFile(path, result.Artifacts[format], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		printFile(path)
	}

	printStats(result.Stats.NodeCount, result.Stats.GroupCount, result.CacheInfo.RenderHit)
	for _, v := range result.Report.Violations {
		printWarning("%s", errors.UserMessage(v))
	}
	return nil
}

// basePath derives the base output path from the output flag and the
// document name. A known format extension on the output path is stripped
// so multiple formats never stack extensions.
func basePath(output, name string) string {
	if output == "" {
		return name
	}
	ext := filepath.Ext(output)
	if pipeline.ValidFormats[strings.TrimPrefix(ext, ".")] {
		return strings.TrimSuffix(output, ext)
	}
	return output
}
