package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultrank/vaultrank/internal/daemon"
	"github.com/vaultrank/vaultrank/internal/search"
	"github.com/vaultrank/vaultrank/internal/ui"
)

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the vault from the command line",
		Long: `Run a hybrid search against the vault index and print the results.

The query runs through the same fusion and reranking as MCP clients,
so this is the fastest way to see what a connected assistant would get.`,
		Example: `  # Basic search
  vaultrank search "weekly review checklist"

  # Restrict to a folder, show channel scores
  vaultrank search -s projects/ --scores "deadline"

  # Machine-readable output
  vaultrank search -f json "meeting notes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("unknown format: %s (valid options: text, json)", opts.format)
			}
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd.OutOrStdout(), query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (default from config)")
	cmd.Flags().StringVarP(&opts.tag, "tag", "t", "", "Weight profile tag (e.g. journal, projects)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text or json")
	cmd.Flags().StringSliceVarP(&opts.scopes, "scope", "s", nil, "Restrict results to path prefixes")
	cmd.Flags().StringSliceVar(&opts.types, "type", nil, "Restrict results to content types (code, prose, mixed)")
	cmd.Flags().BoolVar(&opts.lexicalOnly, "lexical-only", false, "Skip embedding and vector search")
	cmd.Flags().BoolVar(&opts.showScores, "scores", false, "Show per-channel score breakdown")
	cmd.Flags().IntVar(&opts.maxPerSource, "max-per-source", 0, "Cap results per note (-1 disables the cap)")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Open the index in-process (bypass the daemon)")

	return cmd
}

type searchOptions struct {
	limit        int
	tag          string
	format       string
	scopes       []string
	types        []string
	lexicalOnly  bool
	showScores   bool
	maxPerSource int
	local        bool
}

func runSearch(ctx context.Context, out io.Writer, query string, opts searchOptions) error {
	cleanup := setupFileLogging()
	defer cleanup()

	env, err := resolveVault(".")
	if err != nil {
		return err
	}

	if !indexExists(env.dataDir) {
		return fmt.Errorf("no index found. Run 'vaultrank ingest' first")
	}

	// A running daemon keeps the embedder warm, saving the model load
	// on every invocation. Any daemon failure falls back to an
	// in-process search rather than surfacing.
	if !opts.local {
		if resp, ok := searchViaDaemon(ctx, env.root, query, opts); ok {
			return renderSearch(out, resp, opts)
		}
	}

	stack, err := openStack(ctx, env, false)
	if err != nil {
		return err
	}
	defer closeStack(stack)

	resp, err := stack.Search(ctx, query, search.SearchOptions{
		Limit:        opts.limit,
		Tag:          opts.tag,
		LexicalOnly:  opts.lexicalOnly,
		MaxPerSource: opts.maxPerSource,
		Scopes:       opts.scopes,
		Types:        opts.types,
	})
	if err != nil {
		return err
	}
	return renderSearch(out, resp, opts)
}

// searchViaDaemon runs the query through a running daemon. The second
// return is false when no daemon answers or the call fails, in which
// case the caller searches in-process.
func searchViaDaemon(ctx context.Context, root, query string, opts searchOptions) (*search.Response, bool) {
	client := daemon.NewClient(daemon.DefaultConfig())
	if !client.IsRunning() {
		return nil, false
	}

	reply, err := client.Search(ctx, daemon.SearchParams{
		Vault:        root,
		Query:        query,
		Limit:        opts.limit,
		Tag:          opts.tag,
		Scopes:       opts.scopes,
		Types:        opts.types,
		LexicalOnly:  opts.lexicalOnly,
		MaxPerSource: opts.maxPerSource,
	})
	if err != nil {
		slog.Warn("daemon search failed, searching in-process",
			slog.String("error", err.Error()))
		return nil, false
	}

	slog.Debug("search served by daemon", slog.Int("results", len(reply.Results)))
	return daemonResponse(reply), true
}

// daemonResponse rebuilds a search response from the daemon's wire
// shape so both paths share one renderer.
func daemonResponse(reply *daemon.SearchReply) *search.Response {
	resp := &search.Response{
		RequestID: reply.RequestID,
		Query:     reply.Query,
		QueryType: search.QueryType(reply.QueryType),
		ColdStart: reply.ColdStart,
		Took:      time.Duration(reply.TookMS) * time.Millisecond,
		Results:   make([]*search.Candidate, 0, len(reply.Results)),
	}
	for _, r := range reply.Results {
		resp.Results = append(resp.Results, &search.Candidate{
			ChunkID:     r.ChunkID,
			Path:        r.Path,
			Title:       r.Title,
			Content:     r.Content,
			ContentType: r.ContentType,
			FinalScore:  r.Score,
			PriorScore:  r.Prior,
			Channels: search.ChannelScores{
				Path:   r.Channels.Path,
				Short:  r.Channels.Short,
				Title:  r.Channels.Title,
				Body:   r.Channels.Body,
				Vector: r.Channels.Vector,
			},
			MatchedTerms: r.MatchedTerms,
		})
	}
	return resp
}

func renderSearch(out io.Writer, resp *search.Response, opts searchOptions) error {
	renderer := ui.NewSearchRenderer(out, ui.DetectNoColor())
	if opts.format == "json" {
		return renderer.RenderJSON(resp, opts.showScores)
	}
	renderer.Render(resp, opts.showScores)
	return nil
}
