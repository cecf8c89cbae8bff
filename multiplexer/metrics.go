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

package multiplexer

import "github.com/prometheus/client_golang/prometheus"

var (
	clientSessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmux",
			Subsystem: "multiplexer",
			Name:      "client_sessions_created_total",
			Help:      "The total number of client sessions created through connection managers.",
		},
		[]string{"cm"},
	)
	clientSessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmux",
			Subsystem: "multiplexer",
			Name:      "client_sessions_closed_total",
			Help:      "The total number of client sessions closed.",
		},
		[]string{"cm"},
	)
	heartbeatsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmux",
			Subsystem: "multiplexer",
			Name:      "heartbeats_total",
			Help:      "The total number of heartbeats sent to connection managers.",
		},
		[]string{"cm"},
	)
	multiplexerAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cmux",
			Subsystem: "multiplexer",
			Name:      "available",
			Help:      "Whether a connection manager has at least one physical connection.",
		},
		[]string{"cm"},
	)
	incomingPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmux",
			Subsystem: "multiplexer",
			Name:      "incoming_packets_total",
			Help:      "The total number of packets received from connection managers.",
		},
		[]string{"name", "type"},
	)
)

func init() {
	prometheus.MustRegister(clientSessionsCreated)
	prometheus.MustRegister(clientSessionsClosed)
	prometheus.MustRegister(heartbeatsSent)
	prometheus.MustRegister(multiplexerAvailable)
	prometheus.MustRegister(incomingPackets)
}

func reportClientSessionCreated(cm string) {
	clientSessionsCreated.With(prometheus.Labels{"cm": cm}).Inc()
}

func reportClientSessionClosed(cm string) {
	clientSessionsClosed.With(prometheus.Labels{"cm": cm}).Inc()
}

func reportHeartbeat(cm string) {
	heartbeatsSent.With(prometheus.Labels{"cm": cm}).Inc()
}

func reportMultiplexerAvailable(cm string, available bool) {
	var v float64
	if available {
		v = 1
	}
	multiplexerAvailable.With(prometheus.Labels{"cm": cm}).Set(v)
}

func reportIncomingPacket(name, typ string) {
	incomingPackets.With(prometheus.Labels{"name": name, "type": typ}).Inc()
}
