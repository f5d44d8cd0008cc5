// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance. The global meter provider decides where
// measurements are exported.
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{
			meter: otel.Meter("noop"),
		}, nil
	}

	return &Meter{
		meter: otel.Meter(serviceName),
	}, nil
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// SessionMetrics counts refresh session lifecycle events.
type SessionMetrics struct {
	issued   metric.Int64Counter
	rotated  metric.Int64Counter
	revoked  metric.Int64Counter
	rejected metric.Int64Counter
	purged   metric.Int64Counter
}

// NewSessionMetrics registers the session instruments on m. A nil meter
// yields no-op instruments.
func NewSessionMetrics(m *Meter) (*SessionMetrics, error) {
	if m == nil {
		m = &Meter{meter: otel.Meter("noop")}
	}

	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.CreateCounter(name, desc)
		errs = append(errs, err)
		return c
	}

	sm := &SessionMetrics{
		issued:   counter("auth.sessions.issued", "Refresh sessions created at login or registration"),
		rotated:  counter("auth.sessions.rotated", "Refresh sessions replaced by a refresh call"),
		revoked:  counter("auth.sessions.revoked", "Refresh sessions deleted by logout or mass revocation"),
		rejected: counter("auth.tokens.rejected", "Tokens refused by the authentication gates"),
		purged:   counter("auth.sessions.purged", "Expired refresh sessions removed by cleanup"),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return sm, nil
}

func (s *SessionMetrics) Issued(ctx context.Context) {
	s.issued.Add(ctx, 1)
}

func (s *SessionMetrics) Rotated(ctx context.Context) {
	s.rotated.Add(ctx, 1)
}

func (s *SessionMetrics) Revoked(ctx context.Context, n int64) {
	s.revoked.Add(ctx, n)
}

// Rejected records a refused token; kind is "access" or "refresh".
func (s *SessionMetrics) Rejected(ctx context.Context, kind, reason string) {
	s.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("token.kind", kind),
		attribute.String("reason", reason),
	))
}

func (s *SessionMetrics) Purged(ctx context.Context, n int64) {
	s.purged.Add(ctx, n)
}
