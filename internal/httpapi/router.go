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

// Package httpapi serves the operator HTTP surface: health, metrics,
// distribution tooling, worker control and payment webhooks.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/distributor"
	"github.com/h3nc4/OrderScout/internal/monitor"
	"github.com/h3nc4/OrderScout/internal/payment"
	"github.com/h3nc4/OrderScout/internal/storage"
)

// Distribution is the group distributor tooling
type Distribution interface {
	GetStats(ctx context.Context) (distributor.Stats, error)
	RedistributeGroups(ctx context.Context) (distributor.Result, error)
}

// Workers starts and stops worker connections
type Workers interface {
	StartWorker(ctx context.Context, id int64) error
	StopWorker(ctx context.Context, id int64) error
}

// Webhooks settles payment gateway callbacks
type Webhooks interface {
	HandleWebhook(ctx context.Context, provider string, r *http.Request) (string, error)
}

// Deps are the handlers' collaborators. Distribution, Workers and Webhooks may be nil.
type Deps struct {
	Distribution Distribution
	Workers      Workers
	Webhooks     Webhooks
	Metrics      http.Handler
	AdminToken   string
}

type handler struct {
	deps Deps
	log  *zap.Logger
}

// NewRouter wires every route behind logging and panic recovery
func NewRouter(deps Deps, log *zap.Logger) http.Handler {
	h := &handler{deps: deps, log: log.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(deps.AdminToken))

		r.Get("/distribution", h.distribution)
		r.Post("/distribution/redistribute", h.redistribute)
		r.Post("/workers/{id}/start", h.worker(true))
		r.Post("/workers/{id}/stop", h.worker(false))
	})

	r.Post("/webhooks/{provider}", h.webhook)

	return r
}

func (h *handler) distribution(w http.ResponseWriter, r *http.Request) {
	if h.deps.Distribution == nil {
		writeError(w, http.StatusNotImplemented, "distribution is only available in shared mode")
		return
	}
	stats, err := h.deps.Distribution.GetStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) redistribute(w http.ResponseWriter, r *http.Request) {
	if h.deps.Distribution == nil {
		writeError(w, http.StatusNotImplemented, "distribution is only available in shared mode")
		return
	}
	res, err := h.deps.Distribution.RedistributeGroups(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) worker(start bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.deps.Workers == nil {
			writeError(w, http.StatusNotImplemented, "workers are only available in shared mode")
			return
		}
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid worker id")
			return
		}

		if start {
			err = h.deps.Workers.StartWorker(r.Context(), id)
		} else {
			err = h.deps.Workers.StopWorker(r.Context(), id)
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "running": start})
	}
}

func (h *handler) webhook(w http.ResponseWriter, r *http.Request) {
	if h.deps.Webhooks == nil {
		writeError(w, http.StatusNotFound, "payments are disabled")
		return
	}
	provider := chi.URLParam(r, "provider")
	ack, err := h.deps.Webhooks.HandleWebhook(r.Context(), provider, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if ack == "" {
		ack = "OK"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(ack))
}

// Map domain errors to status codes
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, payment.ErrUnknownProvider):
		status = http.StatusNotFound
	case errors.Is(err, payment.ErrSignature):
		status = http.StatusForbidden
	case errors.Is(err, distributor.ErrNoCapacity), errors.Is(err, monitor.ErrNoSession):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// Reject /api requests without the admin bearer token when one is set
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		switch {
		case status >= 500:
			h.log.Error("HTTP request", fields...)
		case status >= 400:
			h.log.Warn("HTTP request", fields...)
		default:
			h.log.Debug("HTTP request", fields...)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
