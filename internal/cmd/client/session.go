package clientcmd

import "github.com/spf13/cobra"

// NewSessionCommand builds the consumer-session verbs. Closing a session
// releases every task it still holds, which is how a consumer signs off
// cleanly.
func NewSessionCommand(apiURL func() string) *cobra.Command {
	sessionCmd := &cobra.Command{Use: "session", Short: "Consumer session operations"}

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Issue a consumer session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, out, err := postJSON(apiURL()+"/v1/sessions/new", map[string]any{})
			if err != nil {
				return err
			}
			return printResponse(status, out)
		},
	}
	sessionCmd.AddCommand(newCmd)

	closeCmd := &cobra.Command{
		Use:   "close",
		Short: "Close a session, releasing its taken tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _ := cmd.Flags().GetString("session")
			status, out, err := postJSON(apiURL()+"/v1/sessions/close", map[string]any{"session": session})
			if err != nil {
				return err
			}
			return printResponse(status, out)
		},
	}
	closeCmd.Flags().String("session", "", "Session token")
	sessionCmd.AddCommand(closeCmd)

	return sessionCmd
}
