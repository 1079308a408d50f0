// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package incident

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// incidentsOpened counts created incidents by severity.
var incidentsOpened = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sentinel_incidents_opened_total",
		Help: "Total number of security incidents opened",
	},
	[]string{"severity"},
)
