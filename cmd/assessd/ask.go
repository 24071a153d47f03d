package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fyrsmithlabs/assessd/internal/recommend"
	"github.com/spf13/cobra"
)

func newAskCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer a single query",
		Long: `Answer one query from the command line. Parsed recommendations are printed
one per line; otherwise the model's raw answer is printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root, appOptions{requireLLM: true, logToStderr: true})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			resp, err := a.orch.Recommend(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return renderResponse(cmd.OutOrStdout(), resp, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the HTTP API's JSON body")
	return cmd
}

// renderResponse prints resp the way the HTTP API shapes it: parsed
// recommendations when there are any, the raw answer otherwise.
func renderResponse(w io.Writer, resp *recommend.Response, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(resp.Recommendations) > 0 {
			return enc.Encode(map[string]any{"recommendations": resp.Recommendations})
		}
		return enc.Encode(map[string]any{"answer": resp.Answer})
	}

	if len(resp.Recommendations) == 0 {
		_, err := fmt.Fprintln(w, resp.Answer)
		return err
	}
	for i, r := range resp.Recommendations {
		if _, err := fmt.Fprintf(w, "%2d. %s\n    %s\n", i+1, r.Name, r.URL); err != nil {
			return err
		}
	}
	return nil
}
