package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для управления задачами.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage automation tasks",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskCreateCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskCancelCmd(clientFn, outputFn),
		newTaskPauseCmd(clientFn, outputFn),
		newTaskResumeCmd(clientFn, outputFn),
		newTaskTakeControlCmd(clientFn, outputFn),
		newTaskEventsCmd(clientFn, outputFn),
		newTaskWatchCmd(clientFn, outputFn),
	)

	return cmd
}

func taskRow(t *TaskResponse) []string {
	reference := ""
	if t.Result != nil {
		reference = t.Result.Reference
	}
	return []string{t.ID, t.Status, t.TargetURL, reference, t.CreatedAt}
}

var taskHeaders = []string{"ID", "STATUS", "TARGET_URL", "REFERENCE", "CREATED"}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, total, err := client.ListTasks(ListTasksOpts{
				Status: status,
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, len(tasks))
			for i := range tasks {
				rows[i] = taskRow(&tasks[i])
			}

			out.Print(taskHeaders, rows, tasks)
			if total > len(tasks) {
				out.Success(fmt.Sprintf("Showing %d of %d tasks", len(tasks), total))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, RUNNING, PAUSED, INTERVENTION_NEEDED, COMPLETED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newTaskCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var fields []string
	var payloadFile string
	var profileKey string

	cmd := &cobra.Command{
		Use:   "create TARGET_URL",
		Short: "Create a new task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			payload := make(map[string]any)

			if payloadFile != "" {
				data, err := os.ReadFile(payloadFile)
				if err != nil {
					return fmt.Errorf("read payload file: %w", err)
				}
				if err := json.Unmarshal(data, &payload); err != nil {
					return fmt.Errorf("parse payload file: %w", err)
				}
			}

			for _, kv := range fields {
				parts := strings.SplitN(kv, "=", 2)
				if len(parts) != 2 {
					return fmt.Errorf("invalid field format %q, expected KEY=VALUE", kv)
				}
				payload[parts[0]] = parts[1]
			}

			task, err := client.CreateTask(CreateTaskRequest{
				TargetURL:  args[0],
				Payload:    payload,
				ProfileKey: profileKey,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task created: %s", task.ID))
			out.Print(taskHeaders, [][]string{taskRow(task)}, task)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&fields, "field", nil, "Form field as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "JSON file with form fields")
	cmd.Flags().StringVar(&profileKey, "profile", "", "Vendor profile key")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetTask(args[0])
			if err != nil {
				return err
			}

			out.Print(taskHeaders, [][]string{taskRow(task)}, task)

			if !out.jsonMode && len(task.Transitions) > 0 {
				out.Line("")
				rows := make([][]string, len(task.Transitions))
				for i, tr := range task.Transitions {
					rows[i] = []string{tr.From, tr.To, tr.Detail, tr.Timestamp}
				}
				out.Table([]string{"FROM", "TO", "DETAIL", "AT"}, rows)
			}
			return nil
		},
	}
}

func newTaskCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().CancelTask(args[0])
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Task cancelled: %s", task.ID))
			return nil
		},
	}
}

func newTaskPauseCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "pause ID",
		Short: "Pause a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().PauseTask(args[0])
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Task paused: %s", task.ID))
			return nil
		},
	}
}

func newTaskResumeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "resume ID",
		Short: "Resume a paused or intervention task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().ResumeTask(args[0])
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Task resumed: %s", task.ID))
			return nil
		},
	}
}

func newTaskTakeControlCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "take-control ID",
		Short: "Hand the page over to a human operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().TakeControl(args[0])
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Control handed over: %s", task.ID))
			return nil
		},
	}
}

func newTaskEventsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "events ID",
		Short: "List task events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			events, err := client.ListEvents(args[0])
			if err != nil {
				return err
			}

			headers := []string{"SEQ", "TYPE", "MESSAGE", "AT"}
			rows := make([][]string, len(events))
			for i, ev := range events {
				rows[i] = []string{strconv.Itoa(ev.Seq), ev.Type, ev.Message, ev.Timestamp}
			}

			out.Print(headers, rows, events)
			return nil
		},
	}
}

func newTaskWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ID",
		Short: "Stream task events until the task finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			return client.StreamEvents(cmd.Context(), args[0], func(msg StreamMessage) error {
				return printStreamMessage(out, msg)
			})
		},
	}
}

// printStreamMessage печатает одно SSE-сообщение watch-режима.
func printStreamMessage(out *Output, msg StreamMessage) error {
	if out.jsonMode {
		out.Line("%s", string(msg.Data))
		return nil
	}

	switch msg.Event {
	case "status":
		var ch StatusChange
		if err := json.Unmarshal(msg.Data, &ch); err == nil {
			out.Line("status: %s", ch.Status)
		}
	case "transition":
		var ch StatusChange
		if err := json.Unmarshal(msg.Data, &ch); err == nil {
			line := "-> " + ch.Status
			if ch.Detail != "" {
				line += " (" + ch.Detail + ")"
			}
			if ch.Reference != "" {
				line += " reference: " + ch.Reference
			}
			out.Line("%s", line)
		}
	default:
		var ev EventResponse
		if err := json.Unmarshal(msg.Data, &ev); err == nil {
			out.Line("[%d] %-12s %s", ev.Seq, ev.Type, ev.Message)
		}
	}
	return nil
}

// NewStatsCmd создаёт команду статистики.
func NewStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregated task statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.GetStats()
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(stats)
				return nil
			}

			rows := make([][]string, 0, len(stats.CountByStatus))
			for status, count := range stats.CountByStatus {
				rows = append(rows, []string{status, strconv.Itoa(count)})
			}
			out.Table([]string{"STATUS", "COUNT"}, rows)
			out.Line("")
			out.Line("total:        %d", stats.Total)
			out.Line("success rate: %.1f%%", stats.SuccessRate*100)
			out.Line("avg duration: %dms", stats.AvgDurationMS)
			return nil
		},
	}
}
