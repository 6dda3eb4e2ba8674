// Copyright 2024 The gVisor Authors.
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

package vfs

import (
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Label values for lookupsTotal.
const (
	lookupHit  = "hit"
	lookupMiss = "miss"
)

// Label values for revalidationsTotal.
const (
	revalidationValid = "valid"
	revalidationStale = "stale"
	revalidationError = "error"
)

var (
	lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vfs",
			Name:      "entry_lookups_total",
			Help:      "Child lookups served by the directory entry cache, by whether the entry was cached.",
		},
		[]string{"result"},
	)
	entriesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vfs",
			Name:      "entry_creations_total",
			Help:      "Backing nodes created by directory entry lookups.",
		},
	)
	revalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vfs",
			Name:      "entry_revalidations_total",
			Help:      "Revalidations of existing directory entries, by outcome.",
		},
		[]string{"result"},
	)
	lruEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vfs",
			Name:      "lru_evictions_total",
			Help:      "Directory entries released by LRU residency, by filesystem type.",
		},
		[]string{"fs"},
	)
	mountsGrafted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vfs",
			Name:      "mounts_grafted",
			Help:      "Mounts currently grafted onto a mount point.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		lookupsTotal,
		entriesCreatedTotal,
		revalidationsTotal,
		lruEvictionsTotal,
		mountsGrafted,
	)
}

// WriteMetrics writes every metric in the vfs namespace registered with
// gatherer to w, in the Prometheus text exposition format.
func WriteMetrics(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "vfs_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
