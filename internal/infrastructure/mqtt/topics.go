package mqtt

import (
	"fmt"
	"strings"
)

// TopicSeparator joins topic levels.
const TopicSeparator = "/"

// Topic roots used by the label printing system.
//
// The printer listener consumes print/, printers announce themselves on
// status/{id}/alive, and upstream systems push delivery_details/{id}.
const (
	TopicRootPrint    = "print"
	TopicRootStatus   = "status"
	TopicRootDelivery = "delivery_details"
)

// JoinTopic joins a configured prefix with the caller's topic segments.
//
// Segments are joined verbatim, so a trailing separator on the last segment
// is preserved:
//
//	JoinTopic([]string{"lift", "lobby"}, "print/") // "lift/lobby/print/"
func JoinTopic(prefix []string, segments ...string) string {
	parts := make([]string, 0, len(prefix)+len(segments))
	parts = append(parts, prefix...)
	parts = append(parts, segments...)
	return strings.Join(parts, TopicSeparator)
}

// Topics provides builders for labeldash MQTT topics.
// Topics built here are not prefixed; outbound topics get the prefix from
// the session, subscription topics are used as configured.
type Topics struct{}

// PrintJobs returns the topic print jobs are published to.
//
// Example: print/
func (Topics) PrintJobs() string {
	return TopicRootPrint + TopicSeparator
}

// PrinterAlive returns the liveness topic of one printer listener.
//
// Example: status/line-3/alive
func (Topics) PrinterAlive(printerID string) string {
	return fmt.Sprintf("%s/%s/alive", TopicRootStatus, printerID)
}

// DashboardStatus returns the retained online/offline topic of a dashboard.
//
// Example: status/dashboard-01/dashboard
func (Topics) DashboardStatus(dashboardID string) string {
	return fmt.Sprintf("%s/%s/dashboard", TopicRootStatus, dashboardID)
}

// DeliveryDetails returns the topic delivery details for a dashboard arrive on.
//
// Example: delivery_details/dashboard-01
func (Topics) DeliveryDetails(dashboardID string) string {
	return fmt.Sprintf("%s/%s", TopicRootDelivery, dashboardID)
}

// AllPrinterAlive matches every printer liveness topic.
//
// Pattern: status/+/alive
func (Topics) AllPrinterAlive() string {
	return TopicRootStatus + "/+/alive"
}

// MatchTopic reports whether topic matches an MQTT subscription filter.
//
// "+" matches exactly one level and "#" matches the remaining levels,
// including none. Topics starting with "$" are not matched by wildcards at
// the first level.
func MatchTopic(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}

	fl := strings.Split(filter, TopicSeparator)
	tl := strings.Split(topic, TopicSeparator)

	for i, f := range fl {
		switch {
		case f == "#":
			return i == len(fl)-1
		case i >= len(tl):
			return false
		case f == "+":
			continue
		case f != tl[i]:
			return false
		}
	}
	return len(fl) == len(tl)
}
