/*
 * Copyright (C) 2026  Henrique Almeida
 * This file is part of OrderScout.
 *
 * OrderScout is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published
 * by the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * OrderScout is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with OrderScout.  If not, see <https://www.gnu.org/licenses/>.
 */

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the pipeline metrics surface used by the dispatcher, notifier and responder
type Recorder interface {
	RecordObserved()
	RecordMatch()
	RecordDelivery()
	RecordDuplicate()
	RecordNotification(err error)
	RecordResponse(result string)
	RecordDispatchLatency(d time.Duration)
}

// Collector records pipeline metrics into Prometheus
type Collector struct {
	observed     prometheus.Counter
	matched      prometheus.Counter
	delivered    prometheus.Counter
	duplicates   prometheus.Counter
	notifySent   prometheus.Counter
	notifyFailed prometheus.Counter
	responses    *prometheus.CounterVec
	connections  *prometheus.GaugeVec
	latency      prometheus.Histogram
}

// NewCollector registers every metric on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		observed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderscout_messages_observed_total",
			Help: "Messages admitted by connections",
		}),
		matched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderscout_matches_total",
			Help: "Subscriber filter matches",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderscout_deliveries_total",
			Help: "Delivery records created",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderscout_duplicate_deliveries_total",
			Help: "Matches skipped because the pair was already delivered",
		}),
		notifySent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderscout_notifications_sent_total",
			Help: "Notifications accepted by the Bot API",
		}),
		notifyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderscout_notifications_failed_total",
			Help: "Notifications that could not be sent",
		}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderscout_responses_total",
			Help: "Respond actions by result",
		}, []string{"result"}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orderscout_connections",
			Help: "Live connections per pool",
		}, []string{"pool"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "orderscout_dispatch_latency_seconds",
			Help:    "Time to dispatch one inbound message",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.observed,
		c.matched,
		c.delivered,
		c.duplicates,
		c.notifySent,
		c.notifyFailed,
		c.responses,
		c.connections,
		c.latency,
	)
	return c
}

func (c *Collector) RecordObserved()  { c.observed.Inc() }
func (c *Collector) RecordMatch()     { c.matched.Inc() }
func (c *Collector) RecordDelivery()  { c.delivered.Inc() }
func (c *Collector) RecordDuplicate() { c.duplicates.Inc() }

func (c *Collector) RecordNotification(err error) {
	if err != nil {
		c.notifyFailed.Inc()
		return
	}
	c.notifySent.Inc()
}

func (c *Collector) RecordResponse(result string) {
	c.responses.WithLabelValues(result).Inc()
}

func (c *Collector) RecordDispatchLatency(d time.Duration) {
	c.latency.Observe(d.Seconds())
}

// ConnectionGauge returns the live connection gauge of one pool
func (c *Collector) ConnectionGauge(pool string) prometheus.Gauge {
	return c.connections.WithLabelValues(pool)
}

// Nop discards every metric
type Nop struct{}

func (Nop) RecordObserved()                     {}
func (Nop) RecordMatch()                        {}
func (Nop) RecordDelivery()                     {}
func (Nop) RecordDuplicate()                    {}
func (Nop) RecordNotification(error)            {}
func (Nop) RecordResponse(string)               {}
func (Nop) RecordDispatchLatency(time.Duration) {}

// Handler serves the Prometheus scrape endpoint
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
