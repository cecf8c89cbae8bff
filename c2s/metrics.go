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

package c2s

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	incomingElements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmux",
			Subsystem: "c2s",
			Name:      "incoming_total",
			Help:      "The total number of elements received from client sessions.",
		},
		[]string{"name", "type"},
	)
	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cmux",
			Subsystem: "c2s",
			Name:      "connections",
			Help:      "The number of directly connected client streams.",
		},
	)
	authentications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmux",
			Subsystem: "c2s",
			Name:      "authentications_total",
			Help:      "The total number of client authentication attempts.",
		},
		[]string{"mechanism", "success"},
	)
	binds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmux",
			Subsystem: "c2s",
			Name:      "binds_total",
			Help:      "The total number of resource bind attempts.",
		},
		[]string{"success"},
	)
)

func init() {
	prometheus.MustRegister(incomingElements)
	prometheus.MustRegister(connections)
	prometheus.MustRegister(authentications)
	prometheus.MustRegister(binds)
}

func reportIncomingElement(name, typ string) {
	incomingElements.With(prometheus.Labels{"name": name, "type": typ}).Inc()
}

func reportConnectionRegistered()   { connections.Inc() }
func reportConnectionUnregistered() { connections.Dec() }

func reportAuthentication(mechanism string, success bool) {
	authentications.With(prometheus.Labels{"mechanism": mechanism, "success": strconv.FormatBool(success)}).Inc()
}

func reportBind(success bool) {
	binds.With(prometheus.Labels{"success": strconv.FormatBool(success)}).Inc()
}
