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
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func find(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordObserved()
	c.RecordObserved()
	c.RecordMatch()
	c.RecordDelivery()
	c.RecordDuplicate()
	c.RecordNotification(nil)
	c.RecordNotification(errors.New("blocked"))
	c.RecordNotification(errors.New("blocked"))

	tests := []struct {
		name string
		want float64
	}{
		{"orderscout_messages_observed_total", 2},
		{"orderscout_matches_total", 1},
		{"orderscout_deliveries_total", 1},
		{"orderscout_duplicate_deliveries_total", 1},
		{"orderscout_notifications_sent_total", 1},
		{"orderscout_notifications_failed_total", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := find(t, reg, tt.name).GetMetric()[0].GetCounter().GetValue()
			if got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestLabelledMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordResponse("sent")
	c.RecordResponse("already_responded")
	c.RecordResponse("sent")
	c.ConnectionGauge("workers").Set(3)
	c.RecordDispatchLatency(20 * time.Millisecond)

	responses := find(t, reg, "orderscout_responses_total")
	if len(responses.GetMetric()) != 2 {
		t.Errorf("expected 2 response series, got %d", len(responses.GetMetric()))
	}

	gauge := find(t, reg, "orderscout_connections")
	m := gauge.GetMetric()[0]
	if m.GetLabel()[0].GetValue() != "workers" || m.GetGauge().GetValue() != 3 {
		t.Errorf("unexpected gauge %v", m)
	}

	hist := find(t, reg, "orderscout_dispatch_latency_seconds")
	if hist.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Error("expected one latency sample")
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordObserved()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "orderscout_messages_observed_total 1") {
		t.Errorf("metric missing from scrape output:\n%s", body)
	}
}
