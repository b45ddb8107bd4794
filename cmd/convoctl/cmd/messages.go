package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type messageEntry struct {
	ID           string    `json:"id"`
	SenderName   string    `json:"sender_name"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
	Pending      bool      `json:"pending"`
	FromOperator bool      `json:"from_operator"`
}

var messagesCmd = &cobra.Command{
	Use:   "messages <roomID>",
	Short: "Print the message log for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var messages []messageEntry
		if err := getJSON("/app/conversations/rooms/"+args[0]+"/messages", &messages); err != nil {
			return err
		}

		for _, m := range messages {
			sender := m.SenderName
			if m.FromOperator {
				sender = "operator"
			}
			marker := ""
			if m.Pending {
				marker = " (pending)"
			}
			fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), sender, m.Body, marker)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(messagesCmd)
}
