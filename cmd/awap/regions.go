package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"go.ngs.io/awap/internal/adapter/store/awap"
)

func newRegionsCmd(a *app) *cobra.Command {
	var (
		export string
		order  string
	)
	cmd := &cobra.Command{
		Use:   "regions [NAME|ID ...]",
		Short: "Describe the region mask and its sub-regions",
		Long: "Print the geometry of the top-level region and of the named " +
			"sub-regions (all of them when none are named). With --export the " +
			"sub-region masks are also written as AWAP grids.",
		RunE: func(cmd *cobra.Command, args []string) error {
			regions, err := a.openRegions()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, regions.Parent().Summary())

			subs, err := regions.SubRegions(args)
			if err != nil {
				return err
			}
			for _, sr := range subs {
				fmt.Fprintln(out)
				fmt.Fprint(out, sr.Summary())
				if export == "" {
					continue
				}
				stem := filepath.Join(export, sr.Region.Name())
				if err := awap.WriteSubRegion(stem, sr, order); err != nil {
					return err
				}
				a.log.WithField("stem", stem).Info("wrote sub-region mask")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&export, "export", "", "directory to write sub-region masks into")
	cmd.Flags().StringVar(&order, "byteorder", awap.LSBFirst, "byte order of exported grids (LSBFIRST or MSBFIRST)")
	return cmd
}
