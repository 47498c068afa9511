package main

import (
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTodosCmd(opts *rootOptions) *cobra.Command {
	var (
		agentID  string
		statuses []string
		tags     []string
		sort     string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "todos",
		Short: "List an agent's todos from a running agentd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.remote == "" {
				return fmt.Errorf("todos 需要 --remote 指定 agentd 地址")
			}
			c, err := opts.remoteClient()
			if err != nil {
				return err
			}
			query := url.Values{}
			for _, s := range statuses {
				query.Add("status", s)
			}
			for _, t := range tags {
				query.Add("tag", t)
			}
			if sort != "" {
				query.Set("sort", sort)
			}
			todos, err := c.AgentTodos(cmd.Context(), agentID, query)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), todos)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tPROGRESS\tMIN\tTITLE")
			for _, item := range todos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d\t%s\n",
					item.ID, item.Status, item.Priority, item.Progress, item.EstimatedDuration, item.Title)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "default", "agent id")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "filter by status (repeatable)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "filter by tag (repeatable)")
	cmd.Flags().StringVar(&sort, "sort", "", `"priority" to sort by priority instead of insertion order`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
