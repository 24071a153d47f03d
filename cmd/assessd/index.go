package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd(root *rootOptions) *cobra.Command {
	var ifMissing bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the vector index from the catalog",
		Long: `Drop any existing index and rebuild it from the spreadsheets in data.path.

With --if-missing an existing complete index is kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root, appOptions{logToStderr: true})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if ifMissing {
				err = a.orch.Init(ctx)
			} else {
				err = a.orch.Rebuild(ctx)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "index ready at %s\n", a.cfg.VectorStore.Path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&ifMissing, "if-missing", false, "only build when no usable index exists")
	return cmd
}
