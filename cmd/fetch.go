package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/album-list/internal/page"
)

func newFetchCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Loads the album list once and prints the HTML fragment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetchCommand(cmd, filter)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "filter forwarded to the endpoint")
	return cmd
}

func runFetchCommand(cmd *cobra.Command, filter string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	target := page.NewContainer(appInstance.GetConfig().Page.TargetID)
	out := appInstance.GetController().Load(cmd.Context(), pageAddress(filter), target)
	if out.Kind != page.Success {
		return fmt.Errorf("load albums (%s): %w", out.Kind, out.Err)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), target.InnerHTML()); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// pageAddress builds the address a browser would have shown for the filter.
func pageAddress(filter string) string {
	if filter == "" {
		return "/"
	}
	return "/?" + page.FilterParamName + "=" + url.QueryEscape(filter)
}
