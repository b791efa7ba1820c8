// Package keygrammar normalizes and validates fact keys against the
// category grammar: <category>(.<segment>)+, lowercase, singular category
// prefix, '/' coerced to '.'.
package keygrammar

import (
	"strings"
	"sync"
)

// defaultCategories is the enumerated set of valid top-level key categories
// used when no config.toml categories list has been applied.
var defaultCategories = map[string]bool{
	"user": true, "project": true, "task": true, "system": true,
	"config": true, "preference": true, "location": true, "tool": true,
	"agent": true, "workflow": true, "team": true, "environment": true,
	"model": true, "auth": true, "channel": true, "gateway": true,
	"plugin": true, "binding": true, "command": true, "meta": true,
	"error": true, "correction": true, "event": true, "entity": true,
	"inferred": true,
}

var (
	categoriesMu sync.RWMutex
	// categories is the enumerated set of valid top-level key categories.
	// UpdateCategories swaps this from pkg/config.Config.Categories at
	// startup; until then it holds defaultCategories.
	categories = defaultCategories
)

// UpdateCategories replaces the enumerated category set from a config.toml
// categories list (spec.md §9), mirroring internal/search.Searcher's
// UpdateConfig hot-swap pattern. An empty list is ignored, leaving the
// current set (default or previously configured) in place.
func UpdateCategories(names []string) {
	if len(names) == 0 {
		return
	}
	next := make(map[string]bool, len(names))
	for _, n := range names {
		next[strings.ToLower(strings.TrimSpace(n))] = true
	}

	categoriesMu.Lock()
	categories = next
	categoriesMu.Unlock()
}

// pluralAliases maps a plural category spelling to its singular form.
var pluralAliases = map[string]string{
	"users": "user", "projects": "project", "tasks": "task",
	"systems": "system", "configs": "config", "preferences": "preference",
	"locations": "location", "tools": "tool", "agents": "agent",
	"workflows": "workflow", "teams": "team", "environments": "environment",
	"models": "model", "auths": "auth", "channels": "channel",
	"gateways": "gateway", "plugins": "plugin", "bindings": "binding",
	"commands": "command", "metas": "meta", "errors": "error",
	"corrections": "correction", "events": "event", "entities": "entity",
	"inferreds": "inferred",
}

// Normalize lowercases the key, replaces '/' separators with '.', and
// aliases a plural category prefix to its singular form. It does not
// validate the result; call Validate for that.
func Normalize(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, "/", ".")

	segments := strings.Split(key, ".")
	if len(segments) == 0 {
		return key
	}
	if singular, ok := pluralAliases[segments[0]]; ok {
		segments[0] = singular
	}
	return strings.Join(segments, ".")
}

// Category returns the first dotted segment of a (normalized) key, used
// for aggregation grouping.
func Category(key string) string {
	if i := strings.IndexByte(key, '.'); i >= 0 {
		return key[:i]
	}
	return key
}

// Validate reports whether key matches <category>(.<segment>)+ with an
// enumerated category. The key should already be normalized.
func Validate(key string) bool {
	if key == "" {
		return false
	}
	segments := strings.Split(key, ".")
	if len(segments) < 2 {
		return false
	}
	for _, seg := range segments {
		if seg == "" {
			return false
		}
	}
	categoriesMu.RLock()
	defer categoriesMu.RUnlock()
	return categories[segments[0]]
}
