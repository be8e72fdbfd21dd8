package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"mailflowAdmin/internal/admin"
	"mailflowAdmin/internal/topology"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printTopology(w io.Writer, topo *topology.Topology) {
	fmt.Fprintf(w, "Environment: %s\n\n", topo.Environment())
	tw := newTable(w)
	fmt.Fprintln(tw, "NAME\tKIND\tVISIBILITY\tRETENTION\tDEAD-LETTER TARGET")
	for _, q := range topo.Queues() {
		dlq := "-"
		if q.RedrivePolicy != nil {
			dlq = fmt.Sprintf("%s (max %d)", q.RedrivePolicy.TargetDeadLetterQueue, q.RedrivePolicy.MaxReceiveCount)
		}
		fmt.Fprintf(tw, "%s\t%s\t%ds\t%ds\t%s\n", q.Name, q.Kind, q.VisibilityTimeoutSeconds, q.RetentionSeconds, dlq)
	}
	tw.Flush()
}

func printQueues(w io.Writer, queues []admin.Queue) {
	tw := newTable(w)
	fmt.Fprintln(tw, "NAME\tKIND\tVISIBLE\tIN FLIGHT\tOLDEST\tSTATUS")
	for _, q := range queues {
		kind := string(q.Kind)
		if !q.Declared {
			kind += " (undeclared)"
		}
		oldest := "-"
		if q.OldestMessageAgeSeconds != nil {
			age := time.Duration(*q.OldestMessageAgeSeconds) * time.Second
			oldest = fmt.Sprintf("%s (%s)", age, admin.MessageAgeBand(age))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			q.Name, kind, count(q.MessageCount, q.Err), count(q.MessagesInFlight, q.Err), oldest, queueStatus(q))
	}
	tw.Flush()
}

func count(n int, err error) string {
	if err != nil {
		return "?"
	}
	return strconv.Itoa(n)
}

func queueStatus(q admin.Queue) string {
	if q.Err != nil {
		return string(admin.Classify(q.Err))
	}
	if len(q.Warnings) > 0 {
		return strings.Join(q.Warnings, "; ")
	}
	return "ok"
}

func printMessages(w io.Writer, list *admin.MessageList, showBody bool) {
	fmt.Fprintf(w, "%s: showing %d of ~%d messages", list.Queue.Name, len(list.Messages), list.TotalCount)
	if list.Duplicates > 0 {
		fmt.Fprintf(w, " (%d duplicate receipts dropped)", list.Duplicates)
	}
	fmt.Fprintln(w)
	if len(list.Messages) == 0 {
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tRECEIVES\tSENT\tPREVIEW\tRECEIPT HANDLE")
	for _, m := range list.Messages {
		receives := "-"
		if m.Attributes.ApproximateReceiveCount != nil {
			receives = strconv.Itoa(*m.Attributes.ApproximateReceiveCount)
			if m.Severity != admin.SeverityNone {
				receives += " " + string(m.Severity)
			}
		}
		sent := "-"
		if m.Attributes.SentAt != nil {
			sent = m.Attributes.SentAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, receives, sent, m.Preview, m.ReceiptHandle)
	}
	tw.Flush()

	if showBody {
		for _, m := range list.Messages {
			fmt.Fprintf(w, "\n--- %s\n%s\n", m.ID, m.Body)
		}
	}
}
