package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <roomID> <message...>",
	Short: "Send a message to a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := strings.Join(args[1:], " ")

		var provisional messageEntry
		err := postJSON("/app/conversations/rooms/"+args[0]+"/messages",
			map[string]string{"body": body}, &provisional)
		if err != nil {
			return err
		}

		fmt.Printf("queued %s\n", provisional.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
