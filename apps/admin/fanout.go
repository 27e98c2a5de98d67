package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/babillard/core/notification"
)

// fanOut completes the notification fan-outs a failed transaction left pending.
// With an id, only that notification is completed.
func (cli *commandLine) fanOut(id string, olderThan time.Duration, limit int) error {
	ctx := context.Background()

	if id != "" {
		summary, err := cli.notifSvc.CompleteFanOut(ctx, id)
		if err != nil {
			return err
		}
		cli.printSummary(summary)
		return nil
	}

	results, err := cli.notifSvc.RetryPending(ctx, olderThan, limit)
	if err != nil {
		return err
	}
	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(cli.out, "%s: %v\n", res.Summary.NotificationID, res.Err)
			continue
		}
		cli.printSummary(res.Summary)
	}
	fmt.Fprintf(cli.out, "%d pending, %d failed\n", len(results), failed)
	if failed > 0 {
		return fmt.Errorf("%d fan-outs failed", failed)
	}
	return nil
}

func (cli *commandLine) printSummary(s notification.FanOutSummary) {
	if s.AlreadyComplete {
		fmt.Fprintf(cli.out, "%s: already complete\n", s.NotificationID)
		return
	}
	fmt.Fprintf(cli.out, "%s: delivered to %d of %d\n", s.NotificationID, s.Delivered, s.Audience)
}
