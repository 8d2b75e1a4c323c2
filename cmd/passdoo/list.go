package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/balduz84/passdoo/internal/models"
	"github.com/spf13/cobra"
)

var (
	listSearch string
	listURL    string
	listForce  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the credentials visible to the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApp()
		if err != nil {
			return err
		}
		defer application.Close()

		ctx := cmd.Context()
		cache := application.PasswordService

		var records []models.PasswordRecord
		if listURL != "" {
			records, err = cache.FindByURL(ctx, listURL)
		} else {
			records, err = cache.GetAll(ctx, listSearch, listForce)
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tUSERNAME\tURI")
		for _, r := range records {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.ID, r.Name, r.Username, r.URI)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Filter by name, username or URI")
	listCmd.Flags().StringVar(&listURL, "url", "", "Show credentials matching a page URL")
	listCmd.Flags().BoolVar(&listForce, "refresh", false, "Bypass the cache")
}
