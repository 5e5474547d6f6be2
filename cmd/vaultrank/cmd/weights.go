package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vaultrank/vaultrank/internal/weights"
)

func newWeightsCmd() *cobra.Command {
	var (
		jsonOutput bool
		sourcePath string
	)

	cmd := &cobra.Command{
		Use:   "weights [tag]",
		Short: "Show the effective channel weights for a tag",
		Long: `Show the channel weight profile a search would use, after merging
the weight source's default block, the tag's override block, and the
hardcoded defaults.

With no tag, the default profile is shown. The weight source comes from
the vault configuration (weights.source) unless --source points
elsewhere. An unreadable source falls back to the hardcoded defaults,
exactly as it would during a search.`,
		Example: `  # Default profile
  vaultrank weights

  # Profile a work-tagged search resolves to
  vaultrank weights work

  # Try a draft file before committing it to the config
  vaultrank weights work --source ./weights-draft.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tag string
			if len(args) == 1 {
				tag = args[0]
			}
			return runWeights(cmd.OutOrStdout(), tag, sourcePath, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&sourcePath, "source", "", "Weight source path (default from config)")

	return cmd
}

type weightsOutput struct {
	Tag      string          `json:"tag,omitempty"`
	Source   string          `json:"source,omitempty"`
	Fallback bool            `json:"fallback"`
	Profile  weights.Profile `json:"profile"`
}

func runWeights(out io.Writer, tag, sourceOverride string, jsonOutput bool) error {
	cleanup := setupFileLogging()
	defer cleanup()

	env, err := resolveVault(".")
	if err != nil {
		return err
	}

	source := sourceOverride
	if source == "" {
		source = env.cfg.WeightsPath(env.root)
	}

	provider := weights.NewProvider(source)
	profile := provider.Resolve(tag)

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(weightsOutput{
			Tag:      tag,
			Source:   source,
			Fallback: provider.UsedFallback(),
			Profile:  profile,
		})
	}

	if tag == "" {
		_, _ = fmt.Fprintln(out, "Default weight profile")
	} else {
		_, _ = fmt.Fprintf(out, "Weight profile for tag %q\n", tag)
	}
	switch {
	case source == "":
		_, _ = fmt.Fprintln(out, "Source: none configured, hardcoded defaults apply")
	case provider.UsedFallback():
		_, _ = fmt.Fprintf(out, "Source: %s (unreadable, hardcoded defaults apply)\n", source)
	default:
		_, _ = fmt.Fprintf(out, "Source: %s\n", source)
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "  path    %.2f\n", profile.Path)
	_, _ = fmt.Fprintf(out, "  short   %.2f\n", profile.Short)
	_, _ = fmt.Fprintf(out, "  title   %.2f\n", profile.Title)
	_, _ = fmt.Fprintf(out, "  body    %.2f\n", profile.Body)
	_, _ = fmt.Fprintf(out, "  vector  %.2f\n", profile.Vector)

	return nil
}
