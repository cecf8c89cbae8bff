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

package offline

import "github.com/prometheus/client_golang/prometheus"

var offlineMessages = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cmux",
		Subsystem: "offline",
		Name:      "messages_total",
		Help:      "The total number of messages handled by the offline strategy.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(offlineMessages)
}

func reportStored() {
	offlineMessages.With(prometheus.Labels{"outcome": "stored"}).Inc()
}

func reportBounced() {
	offlineMessages.With(prometheus.Labels{"outcome": "bounced"}).Inc()
}

func reportDropped() {
	offlineMessages.With(prometheus.Labels{"outcome": "dropped"}).Inc()
}
