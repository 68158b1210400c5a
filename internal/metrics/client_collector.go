package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// clientCollector reads z21.ClientStats on every scrape.
type clientCollector struct {
	src StatsSource

	commandsTx        *prometheus.Desc
	datagramsRx       *prometheus.Desc
	feedbackRx        *prometheus.Desc
	eventsDropped     *prometheus.Desc
	unknownRx         *prometheus.Desc
	sendErrors        *prometheus.Desc
	keepaliveFailures *prometheus.Desc
	lastActivity      *prometheus.Desc
}

func newClientCollector(src StatsSource) *clientCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "z21", name), help, nil, nil)
	}
	return &clientCollector{
		src:               src,
		commandsTx:        desc("commands_sent_total", "Commands sent to the controller"),
		datagramsRx:       desc("datagrams_received_total", "Datagrams received from the controller"),
		feedbackRx:        desc("feedback_received_total", "Feedback datagrams received"),
		eventsDropped:     desc("events_dropped_total", "Feedback events dropped on a full queue"),
		unknownRx:         desc("unknown_datagrams_total", "Datagrams with an unknown header"),
		sendErrors:        desc("send_errors_total", "Failed sends"),
		keepaliveFailures: desc("keepalive_failures", "Consecutive keepalive failures"),
		lastActivity:      desc("last_activity_timestamp_seconds", "Time of the last received datagram"),
	}
}

// Describe implements prometheus.Collector.
func (c *clientCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.commandsTx
	ch <- c.datagramsRx
	ch <- c.feedbackRx
	ch <- c.eventsDropped
	ch <- c.unknownRx
	ch <- c.sendErrors
	ch <- c.keepaliveFailures
	ch <- c.lastActivity
}

// Collect implements prometheus.Collector.
func (c *clientCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.commandsTx, prometheus.CounterValue, float64(s.CommandsTx))
	ch <- prometheus.MustNewConstMetric(c.datagramsRx, prometheus.CounterValue, float64(s.DatagramsRx))
	ch <- prometheus.MustNewConstMetric(c.feedbackRx, prometheus.CounterValue, float64(s.FeedbackRx))
	ch <- prometheus.MustNewConstMetric(c.eventsDropped, prometheus.CounterValue, float64(s.EventsDropped))
	ch <- prometheus.MustNewConstMetric(c.unknownRx, prometheus.CounterValue, float64(s.UnknownRx))
	ch <- prometheus.MustNewConstMetric(c.sendErrors, prometheus.CounterValue, float64(s.SendErrors))
	ch <- prometheus.MustNewConstMetric(c.keepaliveFailures, prometheus.GaugeValue, float64(s.KeepaliveFailures))

	var last float64
	if !s.LastActivity.IsZero() {
		last = float64(s.LastActivity.UnixNano()) / 1e9
	}
	ch <- prometheus.MustNewConstMetric(c.lastActivity, prometheus.GaugeValue, last)
}

func formatPort(port uint32) string {
	return strconv.FormatUint(uint64(port), 10)
}
