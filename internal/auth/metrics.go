// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// loginAttempts counts SecureLogin outcomes.
	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_login_attempts_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"result"},
	)

	// twoFactorChecks counts 2FA verification outcomes.
	twoFactorChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_two_factor_checks_total",
			Help: "Total number of 2FA verifications by outcome",
		},
		[]string{"result"},
	)
)
