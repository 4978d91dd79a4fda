package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nerrad567/labeldash/internal/infrastructure/logging"
	"github.com/nerrad567/labeldash/internal/labels"
	"github.com/nerrad567/labeldash/internal/session"
)

func newWatchCmd(v *viper.Viper) *cobra.Command {
	var topics []string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the session and incoming messages in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if len(topics) == 0 {
				topics = cfg.MQTT.Subscriptions
			}
			if len(topics) == 0 {
				topics = defaultSubscriptions(cfg)
			}

			out := cmd.OutOrStdout()
			log := logging.New(cfg.Logging, version)
			sess, err := newSession(cfg, log, sessionOptions{
				subscriptions: topics,
				messageAction: printingMessageAction(out, labels.NewMessageAction(cfg.MQTT.Prefix, log)),
			})
			if err != nil {
				return err
			}

			w := sess.Watch()
			defer w.Close()

			runErr := make(chan error, 1)
			go func() { runErr <- sess.Run(cmd.Context()) }()

			printSnapshots(cmd.Context(), out, w)
			return <-runErr
		},
	}

	cmd.Flags().StringArrayVarP(&topics, "topic", "t", nil, "topic filter to subscribe (repeatable, default mqtt.subscriptions)")
	return cmd
}

// printingMessageAction prints every inbound message before handing it to next.
func printingMessageAction(out io.Writer, next session.MessageAction) session.MessageAction {
	return func(dispatch session.DispatchFunc, msg session.InboundMessage) error {
		fmt.Fprintf(out, "%s %s %s\n",
			color.HiBlackString(time.Now().Format(time.TimeOnly)),
			color.CyanString(msg.Topic),
			string(msg.Raw),
		)
		if next == nil {
			return nil
		}
		return next(dispatch, msg)
	}
}

// printSnapshots reports connection and subscription changes until ctx is
// cancelled or the session stops.
func printSnapshots(ctx context.Context, out io.Writer, w *session.Watcher) {
	var (
		lastStatus session.Status
		lastSubs   map[string]session.SubState
	)
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-w.C:
			if !ok {
				return
			}
			if snap.Status != lastStatus {
				fmt.Fprintf(out, "%s session %s\n",
					color.HiBlackString(time.Now().Format(time.TimeOnly)),
					statusColor(snap.Status)(string(snap.Status)),
				)
				lastStatus = snap.Status
			}
			for _, line := range subscriptionChanges(lastSubs, snap.Subscriptions) {
				fmt.Fprintf(out, "%s %s\n", color.HiBlackString(time.Now().Format(time.TimeOnly)), line)
			}
			lastSubs = snap.Subscriptions
		}
	}
}

// subscriptionChanges describes topics whose state differs between snapshots,
// sorted by topic.
func subscriptionChanges(prev, next map[string]session.SubState) []string {
	topics := make([]string, 0, len(next))
	for topic, state := range next {
		if old, ok := prev[topic]; !ok || old != state {
			topics = append(topics, topic)
		}
	}
	for topic := range prev {
		if _, ok := next[topic]; !ok {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)

	lines := make([]string, 0, len(topics))
	for _, topic := range topics {
		state, ok := next[topic]
		if !ok {
			lines = append(lines, fmt.Sprintf("%s %s", topic, color.YellowString("removed")))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s", topic, subStateColor(state)(string(state))))
	}
	return lines
}

func statusColor(s session.Status) func(string, ...interface{}) string {
	switch s {
	case session.StatusConnected:
		return color.GreenString
	case session.StatusConnecting:
		return color.YellowString
	default:
		return color.RedString
	}
}

func subStateColor(s session.SubState) func(string, ...interface{}) string {
	switch s {
	case session.SubSubscribed:
		return color.GreenString
	case session.SubPending:
		return color.YellowString
	default:
		return color.RedString
	}
}
