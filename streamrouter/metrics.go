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

package streamrouter

import "github.com/prometheus/client_golang/prometheus"

var registrySize = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "cmux",
		Subsystem: "stream_router",
		Name:      "registered_streams",
		Help:      "Number of streams currently registered.",
	},
)

func init() {
	prometheus.MustRegister(registrySize)
}

func reportRegistrySize(n int64) {
	registrySize.Set(float64(n))
}
