// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

// Package authz provides role-based authorization for admin actions
// using Casbin. Roles form a hierarchy (super_admin > admin >
// customer); permissions are capability tokens such as
// "security:incidents" with read/write/unblock actions.
package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Role names understood by the default policy.
const (
	RoleCustomer   = "customer"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Capability objects checked by the admin surfaces.
const (
	ObjectStats     = "security:stats"
	ObjectEvents    = "security:events"
	ObjectIncidents = "security:incidents"
	ObjectRateLimit = "security:ratelimit"
	ObjectConfig    = "security:config"
)

// Actions on capability objects.
const (
	ActionRead    = "read"
	ActionWrite   = "write"
	ActionUnblock = "unblock"
)

// Config holds enforcer configuration.
type Config struct {
	// ModelPath overrides the embedded Casbin model when set and the
	// file exists.
	ModelPath string `json:"model_path" koanf:"model_path"`

	// PolicyPath overrides the embedded policy when set and the file
	// exists.
	PolicyPath string `json:"policy_path" koanf:"policy_path"`

	// DefaultRole is assumed for subjects with no role assignment.
	DefaultRole string `json:"default_role" koanf:"default_role"`

	// CacheEnabled caches enforcement decisions.
	CacheEnabled bool `json:"cache_enabled" koanf:"cache_enabled"`

	// CacheTTL is how long decisions stay cached.
	CacheTTL time.Duration `json:"cache_ttl" koanf:"cache_ttl"`
}

// DefaultConfig returns the default enforcer configuration.
func DefaultConfig() Config {
	return Config{
		DefaultRole:  RoleCustomer,
		CacheEnabled: true,
		CacheTTL:     5 * time.Minute,
	}
}

// Enforcer wraps the Casbin enforcer with decision caching and
// capability helpers.
type Enforcer struct {
	config   Config
	enforcer *casbin.SyncedEnforcer
	cache    *decisionCache
}

// NewEnforcer creates an authorization enforcer. With no file paths
// configured it runs entirely from the embedded model and policy.
func NewEnforcer(config Config) (*Enforcer, error) {
	var m model.Model
	var err error

	if config.ModelPath != "" && fileExists(config.ModelPath) {
		m, err = model.NewModelFromFile(config.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" && fileExists(config.PolicyPath) {
		adapter := fileadapter.NewAdapter(config.PolicyPath)
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	e := &Enforcer{
		config:   config,
		enforcer: enforcer,
	}
	if config.CacheEnabled {
		e.cache = newDecisionCache(config.CacheTTL)
	}
	return e, nil
}

// loadEmbeddedPolicy parses and loads the embedded policy CSV.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch parts[0] {
		case "p":
			if len(parts) >= 4 {
				if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
					return fmt.Errorf("add policy %v: %w", parts[1:], err)
				}
			}
		case "g":
			if len(parts) >= 3 {
				if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
					return fmt.Errorf("add grouping policy %v: %w", parts[1:], err)
				}
			}
		}
	}
	return nil
}

// Enforce checks whether the subject can perform the action on the
// object.
func (e *Enforcer) Enforce(subject, object, action string) (bool, error) {
	if e.cache != nil {
		if allowed, ok := e.cache.get(subject, object, action); ok {
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}

	if e.cache != nil {
		e.cache.set(subject, object, action, allowed)
	}
	return allowed, nil
}

// EnforceRole checks whether a role (falling back to the default role
// when empty) allows the action on the object.
func (e *Enforcer) EnforceRole(role, object, action string) (bool, error) {
	if role == "" {
		role = e.config.DefaultRole
	}
	return e.Enforce(role, object, action)
}

// AddRoleForUser assigns a role to a user.
func (e *Enforcer) AddRoleForUser(user, role string) error {
	if _, err := e.enforcer.AddGroupingPolicy(user, role); err != nil {
		return fmt.Errorf("add role: %w", err)
	}
	if e.cache != nil {
		e.cache.invalidateSubject(user)
	}
	return nil
}

// RemoveRoleForUser removes a role from a user.
func (e *Enforcer) RemoveRoleForUser(user, role string) error {
	if _, err := e.enforcer.RemoveGroupingPolicy(user, role); err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	if e.cache != nil {
		e.cache.invalidateSubject(user)
	}
	return nil
}

// RolesForUser returns the roles assigned to a user.
func (e *Enforcer) RolesForUser(user string) ([]string, error) {
	return e.enforcer.GetRolesForUser(user)
}

// Close releases enforcer resources.
func (e *Enforcer) Close() {
	if e.cache != nil {
		e.cache.stop()
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
