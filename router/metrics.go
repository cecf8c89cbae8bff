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

package router

import "github.com/prometheus/client_golang/prometheus"

var (
	boundSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cmux",
			Subsystem: "router",
			Name:      "bound_sessions",
			Help:      "The number of sessions with a bound resource.",
		},
	)
	routedStanzas = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmux",
			Subsystem: "router",
			Name:      "routed_total",
			Help:      "The total number of stanzas routed to local destinations.",
		},
		[]string{"name", "success"},
	)
)

func init() {
	prometheus.MustRegister(boundSessions)
	prometheus.MustRegister(routedStanzas)
}

func reportBound()   { boundSessions.Inc() }
func reportUnbound() { boundSessions.Dec() }

func reportRouted(name string, err error) {
	success := "true"
	if err != nil {
		success = "false"
	}
	routedStanzas.With(prometheus.Labels{"name": name, "success": success}).Inc()
}
