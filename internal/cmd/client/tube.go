package clientcmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// NewTubeCommand builds the tube verbs mirroring the server's lifecycle
// operations: put, take, ack, release, peek, delete, drop, list, stats.
func NewTubeCommand(apiURL func() string) *cobra.Command {
	tubeCmd := &cobra.Command{Use: "tube", Short: "Tube operations"}

	putCmd := &cobra.Command{
		Use:   "put",
		Short: "Put a task into a tube",
		RunE: func(cmd *cobra.Command, args []string) error {
			tube, _ := cmd.Flags().GetString("tube")
			payload, _ := cmd.Flags().GetString("payload")
			channel, _ := cmd.Flags().GetString("channel")
			msgType, _ := cmd.Flags().GetString("message-type")
			objType, _ := cmd.Flags().GetInt64("object-type")
			objID, _ := cmd.Flags().GetInt64("object-id")

			body := map[string]any{
				"tube":         tube,
				"payload":      []byte(payload),
				"channel":      channel,
				"message_type": msgType,
				"object_type":  objType,
				"object_id":    objID,
			}
			if cmd.Flags().Changed("delay") {
				v, _ := cmd.Flags().GetFloat64("delay")
				body["delay"] = v
			}
			if cmd.Flags().Changed("ttl") {
				v, _ := cmd.Flags().GetFloat64("ttl")
				body["ttl"] = v
			}
			if cmd.Flags().Changed("to-send-at") {
				v, _ := cmd.Flags().GetInt64("to-send-at")
				body["to_send_at"] = v
			}
			if cmd.Flags().Changed("valid-until") {
				v, _ := cmd.Flags().GetInt64("valid-until")
				body["valid_until"] = v
			}
			status, out, err := postJSON(apiURL()+"/v1/tubes/put", body)
			if err != nil {
				return err
			}
			return printResponse(status, out)
		},
	}
	putCmd.Flags().String("tube", "default", "Tube name")
	putCmd.Flags().String("payload", "", "Task payload")
	putCmd.Flags().String("channel", "", "Classification: channel")
	putCmd.Flags().String("message-type", "", "Classification: message type")
	putCmd.Flags().Int64("object-type", 0, "Classification: object type")
	putCmd.Flags().Int64("object-id", 0, "Classification: object id")
	putCmd.Flags().Float64("delay", 0, "Delay before the task becomes ready, in seconds")
	putCmd.Flags().Float64("ttl", 0, "Hard lifetime in seconds")
	putCmd.Flags().Int64("to-send-at", 0, "Absolute ready time (wire units, 100ns)")
	putCmd.Flags().Int64("valid-until", 0, "Absolute hard deadline (wire units, 100ns)")
	tubeCmd.AddCommand(putCmd)

	takeCmd := &cobra.Command{
		Use:   "take",
		Short: "Take the next ready task",
		RunE: func(cmd *cobra.Command, args []string) error {
			tube, _ := cmd.Flags().GetString("tube")
			session, _ := cmd.Flags().GetString("session")
			body := map[string]any{"tube": tube}
			if session != "" {
				body["session"] = session
			}
			if cmd.Flags().Changed("timeout") {
				v, _ := cmd.Flags().GetFloat64("timeout")
				body["timeout"] = v
			}
			status, out, err := postJSON(apiURL()+"/v1/tubes/take", body)
			if err != nil {
				return err
			}
			return printResponse(status, out)
		},
	}
	takeCmd.Flags().String("tube", "default", "Tube name")
	takeCmd.Flags().Float64("timeout", 0, "Wait timeout in seconds (0 returns immediately)")
	takeCmd.Flags().String("session", "", "Consumer session token")
	tubeCmd.AddCommand(takeCmd)

	ackCmd := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge a taken task",
		RunE: func(cmd *cobra.Command, args []string) error {
			tube, _ := cmd.Flags().GetString("tube")
			id, _ := cmd.Flags().GetUint64("id")
			epoch, _ := cmd.Flags().GetUint64("epoch")
			status, out, err := postJSON(apiURL()+"/v1/tubes/ack", map[string]any{"tube": tube, "id": id, "epoch": epoch})
			if err != nil {
				return err
			}
			return printResponse(status, out)
		},
	}
	ackCmd.Flags().String("tube", "default", "Tube name")
	ackCmd.Flags().Uint64("id", 0, "Task id")
	ackCmd.Flags().Uint64("epoch", 0, "Owner epoch observed at take")
	tubeCmd.AddCommand(ackCmd)

	releaseCmd := &cobra.Command{
		Use:   "release",
		Short: "Release a taken task back to the tube",
		RunE: func(cmd *cobra.Command, args []string) error {
			tube, _ := cmd.Flags().GetString("tube")
			id, _ := cmd.Flags().GetUint64("id")
			epoch, _ := cmd.Flags().GetUint64("epoch")
			body := map[string]any{"tube": tube, "id": id, "epoch": epoch}
			if cmd.Flags().Changed("delay") {
				v, _ := cmd.Flags().GetFloat64("delay")
				body["delay"] = v
			}
			status, out, err := postJSON(apiURL()+"/v1/tubes/release", body)
			if err != nil {
				return err
			}
			return printResponse(status, out)
		},
	}
	releaseCmd.Flags().String("tube", "default", "Tube name")
	releaseCmd.Flags().Uint64("id", 0, "Task id")
	releaseCmd.Flags().Uint64("epoch", 0, "Owner epoch observed at take")
	releaseCmd.Flags().Float64("delay", 0, "Delay before the task becomes ready again, in seconds")
	tubeCmd.AddCommand(releaseCmd)

	for _, op := range []struct {
		use, short, path string
	}{
		{"peek", "Show the current row for a task", "/v1/tubes/peek"},
		{"delete", "Delete a task in any state", "/v1/tubes/delete"},
	} {
		path := op.path
		c := &cobra.Command{
			Use:   op.use,
			Short: op.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				tube, _ := cmd.Flags().GetString("tube")
				id, _ := cmd.Flags().GetUint64("id")
				status, out, err := postJSON(apiURL()+path, map[string]any{"tube": tube, "id": id})
				if err != nil {
					return err
				}
				return printResponse(status, out)
			},
		}
		c.Flags().String("tube", "default", "Tube name")
		c.Flags().Uint64("id", 0, "Task id")
		tubeCmd.AddCommand(c)
	}

	dropCmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop a tube (fails while tasks are taken or consumers wait)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tube, _ := cmd.Flags().GetString("tube")
			status, out, err := postJSON(apiURL()+"/v1/tubes/drop", map[string]any{"tube": tube})
			if err != nil {
				return err
			}
			return printResponse(status, out)
		},
	}
	dropCmd.Flags().String("tube", "default", "Tube name")
	tubeCmd.AddCommand(dropCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in a tube, optionally CEL-filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			tube, _ := cmd.Flags().GetString("tube")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			q := url.Values{}
			q.Set("tube", tube)
			if filter != "" {
				q.Set("filter", filter)
			}
			if limit > 0 {
				q.Set("limit", fmt.Sprintf("%d", limit))
			}
			status, out, err := getJSON(apiURL() + "/v1/tubes/list?" + q.Encode())
			if err != nil {
				return err
			}
			return printResponse(status, out)
		},
	}
	listCmd.Flags().String("tube", "default", "Tube name")
	listCmd.Flags().String("filter", "", `CEL filter, e.g. channel == "email"`)
	listCmd.Flags().Int("limit", 0, "Maximum rows to return")
	tubeCmd.AddCommand(listCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-state task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			tube, _ := cmd.Flags().GetString("tube")
			q := url.Values{}
			if tube != "" {
				q.Set("tube", tube)
			}
			status, out, err := getJSON(apiURL() + "/v1/tubes/stats?" + q.Encode())
			if err != nil {
				return err
			}
			return printResponse(status, out)
		},
	}
	statsCmd.Flags().String("tube", "", "Tube name (empty shows all tubes)")
	tubeCmd.AddCommand(statsCmd)

	return tubeCmd
}
