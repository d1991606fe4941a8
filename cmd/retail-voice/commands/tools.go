package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-retail-voice/internal/log"
	"github.com/teslashibe/go-retail-voice/pkg/catalog"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tool server's tools and validate the attribute key table",
	RunE:  runTools,
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}

	client, err := catalog.NewMCPClient(cfg.ToolProviderEndpoint, catalog.Options{
		Timeout: cfg.HealthCheckTimeout(),
		Version: Version,
		Logger:  log.L(),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return listTools(ctx, cmd.OutOrStdout(), client)
}

// listTools prints the advertised tools and the key table check.
func listTools(ctx context.Context, w io.Writer, p catalog.Provider) error {
	tools, err := p.ListTools(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tDESCRIPTION")
	for _, t := range tools {
		fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	err = catalog.ValidateAttributeKeys(ctx, p)
	var keyErr *catalog.KeyTableError
	switch {
	case errors.As(err, &keyErr):
		fmt.Fprintf(w, "\nattribute key table: FAIL\n  missing fields: %v\n  missing tools: %v\n",
			keyErr.MissingFields, keyErr.MissingTools)
		return err
	case err != nil:
		return err
	}
	fmt.Fprintln(w, "\nattribute key table: ok")
	return nil
}
