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

package deliverer

import "github.com/prometheus/client_golang/prometheus"

var fallbackDeliveries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cmux",
		Subsystem: "deliverer",
		Name:      "fallback_total",
		Help:      "The total number of packets handled by the fallback deliverer.",
	},
	[]string{"name", "outcome"},
)

func init() {
	prometheus.MustRegister(fallbackDeliveries)
}

func reportDelivery(name, outcome string) {
	fallbackDeliveries.With(prometheus.Labels{"name": name, "outcome": outcome}).Inc()
}
