package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mailflowAdmin/internal/admin"
	"mailflowAdmin/internal/refresh"
)

const peekWarning = "Inspecting receives messages: they stay invisible to consumers for the peek visibility timeout and their receive count grows."

var errAborted = errors.New("aborted")

func newTopologyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Print the declared queues of the environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd.Context(), false); err != nil {
				return err
			}
			printTopology(cmd.OutOrStdout(), a.topology)
			return nil
		},
	}
}

func newQueuesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "List the queues with their depth and health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx, false); err != nil {
				return err
			}
			queues, err := a.service.ListQueues(ctx)
			if err != nil {
				return err
			}
			printQueues(cmd.OutOrStdout(), queues)
			return nil
		},
	}
}

func newMessagesCommand(a *app) *cobra.Command {
	messagesCmd := &cobra.Command{
		Use:   "messages <queue>",
		Short: "Inspect the messages of a queue",
		Long:  "Inspect the messages of a queue.\n\n" + peekWarning,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := a.setup(ctx, false); err != nil {
				return err
			}

			limit, _ := cmd.Flags().GetInt("limit")
			filter, _ := cmd.Flags().GetString("filter")
			showBody, _ := cmd.Flags().GetBool("body")
			watch, _ := cmd.Flags().GetBool("watch")
			interval, _ := cmd.Flags().GetDuration("interval")

			fmt.Fprintln(cmd.ErrOrStderr(), "Warning: "+peekWarning)

			queue := args[0]
			opts := admin.ListOptions{Limit: limit, Filter: filter}
			list := func(ctx context.Context) error {
				result, err := a.service.ListMessages(ctx, queue, opts)
				if err != nil {
					return err
				}
				printMessages(cmd.OutOrStdout(), result, showBody)
				return nil
			}

			if !watch {
				return list(ctx)
			}
			return watchMessages(ctx, cmd.ErrOrStderr(), interval, list)
		},
	}
	messagesCmd.Flags().Int("limit", 0, "Maximum number of messages to show (default from MAILFLOW_DEFAULT_MESSAGE_LIMIT)")
	messagesCmd.Flags().String("filter", "", "Only show messages whose body contains this text")
	messagesCmd.Flags().Bool("body", false, "Print full message bodies")
	messagesCmd.Flags().Bool("watch", false, "Inspect again on every interval until interrupted")
	messagesCmd.Flags().Duration("interval", 30*time.Second, "Watch interval")
	return messagesCmd
}

func watchMessages(ctx context.Context, stderr io.Writer, interval time.Duration, list refresh.Task) error {
	poller, err := refresh.NewPoller("messages", interval, func(ctx context.Context) error {
		if err := list(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := poller.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return poller.Stop(stopCtx)
}

func newDeleteCommand(a *app) *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete <queue> <receipt-handle>",
		Short: "Delete one received message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx, false); err != nil {
				return err
			}

			queue, handle := args[0], args[1]
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete message from %s? [y/N]: ", queue))
				if err != nil {
					return err
				}
				if !ok {
					return errAborted
				}
			}

			if err := a.service.DeleteMessage(ctx, queue, handle); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Message deleted from %s\n", queue)
			return nil
		},
	}
	deleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return deleteCmd
}

func newRedriveCommand(a *app) *cobra.Command {
	redriveCmd := &cobra.Command{
		Use:   "redrive <queue> <receipt-handle>",
		Short: "Move one received message to its target queue",
		Long: `Move one received message to its target queue.

The body is published to the target first and the source copy deleted afterwards. When
the delete fails the message exists in both queues and the command reports a duplicate.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx, false); err != nil {
				return err
			}

			queue, handle := args[0], args[1]
			body, _ := cmd.Flags().GetString("body")
			target, _ := cmd.Flags().GetString("target")
			messageID, _ := cmd.Flags().GetString("message-id")
			yes, _ := cmd.Flags().GetBool("yes")

			resolved, err := a.service.ResolveRedriveTarget(queue, target)
			if err != nil {
				return err
			}
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Move message from %s to %s? [y/N]: ", queue, resolved))
				if err != nil {
					return err
				}
				if !ok {
					return errAborted
				}
			}

			result, err := a.service.Redrive(ctx, queue, admin.RedriveRequest{
				MessageID:       messageID,
				ReceiptHandle:   handle,
				Body:            body,
				TargetQueueName: resolved,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Outcome == admin.OutcomeDuplicated {
				fmt.Fprintf(out, "Message published to %s as %s but still present in %s: %v\n",
					result.TargetQueue, result.NewMessageID, result.SourceQueue, result.DeleteErr)
				return nil
			}
			fmt.Fprintf(out, "Message moved from %s to %s as %s\n", result.SourceQueue, result.TargetQueue, result.NewMessageID)
			return nil
		},
	}
	redriveCmd.Flags().String("body", "", "Message body to publish")
	redriveCmd.Flags().String("target", "", "Target queue (default: resolved from the topology or the queue name)")
	redriveCmd.Flags().String("message-id", "", "Source message ID, for logging")
	redriveCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	_ = redriveCmd.MarkFlagRequired("body")
	return redriveCmd
}

func newPurgeCommand(a *app) *cobra.Command {
	purgeCmd := &cobra.Command{
		Use:   "purge <queue>",
		Short: "Delete every message of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx, false); err != nil {
				return err
			}

			queue := args[0]
			confirmation, _ := cmd.Flags().GetString("confirm")
			if confirmation == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "This permanently deletes every message in %s.\nType the queue name to confirm: ", queue)
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				confirmation = line
			}

			if err := a.service.Purge(ctx, queue, confirmation); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queue '%s' has been purged successfully\n", queue)
			return nil
		},
	}
	purgeCmd.Flags().String("confirm", "", "Queue name, to skip the interactive confirmation")
	return purgeCmd
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	line, err := readLine(in)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
