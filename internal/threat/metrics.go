// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package threat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// threatsDetected counts matched threat patterns by name and severity.
var threatsDetected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sentinel_threats_detected_total",
		Help: "Total number of matched threat patterns",
	},
	[]string{"pattern", "severity"},
)
