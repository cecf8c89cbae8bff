// Copyright 2021 The jackal Authors
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

// Package measuredrepository instruments a repository with operation metrics.
package measuredrepository

import (
	"context"
	"strconv"
	"time"

	"github.com/jackal-xmpp/cmux/storage/repository"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	upsertOp = "upsert"
	fetchOp  = "fetch"
	deleteOp = "delete"
)

var (
	repOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmux",
			Subsystem: "repository",
			Name:      "operations_total",
			Help:      "The total number of repository operations.",
		},
		[]string{"type", "success"},
	)
	repOperationDurationBucket = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cmux",
			Subsystem: "repository",
			Name:      "operation_duration_bucket",
			Help:      "Bucketed histogram of repository operation duration.",
			Buckets:   prometheus.ExponentialBuckets(0.00025, 2, 14),
		},
		[]string{"type", "success"},
	)
)

func init() {
	prometheus.MustRegister(repOperations)
	prometheus.MustRegister(repOperationDurationBucket)
}

// Measured is measured Repository implementation.
type Measured struct {
	rep repository.Repository
}

// New returns a new initialized Measured repository.
func New(rep repository.Repository) repository.Repository {
	return &Measured{rep: rep}
}

// InsertOfflineMessage satisfies repository.Offline interface.
func (m *Measured) InsertOfflineMessage(ctx context.Context, message *xmpp.Message, username string) error {
	t0 := time.Now()
	err := m.rep.InsertOfflineMessage(ctx, message, username)
	reportOpMetric(upsertOp, time.Since(t0).Seconds(), err == nil)
	return err
}

// CountOfflineMessages satisfies repository.Offline interface.
func (m *Measured) CountOfflineMessages(ctx context.Context, username string) (int, error) {
	t0 := time.Now()
	count, err := m.rep.CountOfflineMessages(ctx, username)
	reportOpMetric(fetchOp, time.Since(t0).Seconds(), err == nil)
	return count, err
}

// FetchOfflineMessages satisfies repository.Offline interface.
func (m *Measured) FetchOfflineMessages(ctx context.Context, username string) ([]*xmpp.Message, error) {
	t0 := time.Now()
	ms, err := m.rep.FetchOfflineMessages(ctx, username)
	reportOpMetric(fetchOp, time.Since(t0).Seconds(), err == nil)
	return ms, err
}

// DeleteOfflineMessages satisfies repository.Offline interface.
func (m *Measured) DeleteOfflineMessages(ctx context.Context, username string) error {
	t0 := time.Now()
	err := m.rep.DeleteOfflineMessages(ctx, username)
	reportOpMetric(deleteOp, time.Since(t0).Seconds(), err == nil)
	return err
}

// Start initializes repository.
func (m *Measured) Start(ctx context.Context) error {
	return m.rep.Start(ctx)
}

// Stop releases all underlying repository resources.
func (m *Measured) Stop(ctx context.Context) error {
	return m.rep.Stop(ctx)
}

func reportOpMetric(opType string, durationInSecs float64, success bool) {
	metricLabel := prometheus.Labels{
		"type":    opType,
		"success": strconv.FormatBool(success),
	}
	repOperations.With(metricLabel).Inc()
	repOperationDurationBucket.With(metricLabel).Observe(durationInSecs)
}
