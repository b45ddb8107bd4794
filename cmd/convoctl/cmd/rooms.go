package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var roomsQuery string

type roomEntry struct {
	ID            string `json:"id"`
	Preview       string `json:"preview"`
	ActivityLabel string `json:"activity_label"`
	Participants  []struct {
		Name   string `json:"name"`
		Online bool   `json:"online"`
	} `json:"participants"`
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List conversations, most recently active first",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/app/conversations/rooms"
		if roomsQuery != "" {
			path += "?q=" + url.QueryEscape(roomsQuery)
		}

		var rooms []roomEntry
		if err := getJSON(path, &rooms); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPARTICIPANTS\tLAST ACTIVITY\tPREVIEW")
		for _, r := range rooms {
			names := make([]string, 0, len(r.Participants))
			for _, p := range r.Participants {
				name := p.Name
				if p.Online {
					name += "*"
				}
				names = append(names, name)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, strings.Join(names, ", "), r.ActivityLabel, truncate(r.Preview, 40))
		}
		return w.Flush()
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	roomsCmd.Flags().StringVarP(&roomsQuery, "query", "q", "", "Filter by participant name, email or preview text")
	rootCmd.AddCommand(roomsCmd)
}
