package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nerrad567/labeldash/internal/infrastructure/logging"
	"github.com/nerrad567/labeldash/internal/labels"
)

const defaultPrintTimeout = 10 * time.Second

func newPrintCmd(v *viper.Viper) *cobra.Command {
	var (
		id      string
		items   []string
		qty     int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "print",
		Short: "Send one print job and exit",
		Example: `  labeldash print --item "Part=A-100:text" --item "Serial=123456:barcode" --qty 2
  labeldash print --id bench-3 --item "Link=https://example.com/a:QR"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if id == "" {
				id = cfg.Dashboard.ID
			}
			job, err := buildPrintJob(id, items, qty)
			if err != nil {
				return err
			}

			log := logging.New(cfg.Logging, version)
			sess, err := newSession(cfg, log, sessionOptions{})
			if err != nil {
				return err
			}

			runCtx, stop := context.WithCancel(context.Background())
			defer func() {
				stop()
				<-sess.Done()
			}()
			go func() { _ = sess.Run(runCtx) }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			sub, err := labels.NewSubmitter(sess, cfg.Dashboard.ID, cfg.MQTT.Prefix, log).Submit(ctx, job)
			if err != nil {
				return err
			}
			if err := sess.WaitFlushed(ctx); err != nil {
				return fmt.Errorf("job %s not published: %w", sub.Job.JobID, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "job %s sent to %s\n", sub.Job.JobID, sub.Topic)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "dashboard id written into the job (default dashboard.id)")
	cmd.Flags().StringArrayVar(&items, "item", nil, "label item as key=value:type (repeatable)")
	cmd.Flags().IntVar(&qty, "qty", 1, "number of copies")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultPrintTimeout, "how long to wait for the broker")
	_ = cmd.MarkFlagRequired("item")

	return cmd
}

// buildPrintJob parses the --item flags into a validated job.
func buildPrintJob(id string, items []string, qty int) (labels.PrintJob, error) {
	job := labels.PrintJob{ID: id, Qty: qty}
	for _, raw := range items {
		item, err := labels.ParseItem(raw)
		if err != nil {
			return labels.PrintJob{}, err
		}
		job.Items = append(job.Items, item)
	}
	if err := labels.ValidateJob(&job); err != nil {
		return labels.PrintJob{}, err
	}
	return job, nil
}
