package domain

import (
	"encoding/json"
)

// ParentOrphan marks a leaf scope that belongs to no multi-scope aggregator.
// A NULL parent means the scope is itself a multi-scope (root).
const ParentOrphan = "orphan"

// Scope represents a tenant: a single city/site or a multi-tenant aggregator.
type Scope struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Schema   string          `json:"dbschema"`
	ParentID *string         `json:"parent_id"`
	Status   int             `json:"status"`
	Timezone string          `json:"timezone"`
	Location []float64       `json:"location,omitempty"` // [lat, lng]
	Zoom     *int            `json:"zoom,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Multi reports whether the scope is a multi-tenant aggregator. The flag is
// always derived from the parent reference, never stored, so callers cannot
// desync it.
func (s Scope) Multi() bool {
	return s.ParentID == nil
}

// ScopeView is the response shape for scope lookups. Optional attributes are
// omitted when empty so leaf and root scopes can share one type: children are
// always presented as leaves (no Multi, ParentID or Childs of their own).
type ScopeView struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Schema     string       `json:"dbschema,omitempty"`
	ParentID   *string      `json:"parent_id,omitempty"`
	Location   []float64    `json:"location,omitempty"`
	Zoom       *int         `json:"zoom,omitempty"`
	Categories []string     `json:"categories,omitempty"`
	Multi      *bool        `json:"multi,omitempty"`
	Childs     []*ScopeView `json:"childs,omitempty"`
	Timezone   string       `json:"timezone,omitempty"`
	NCities    *int         `json:"n_cities,omitempty"`
	Status     *int         `json:"status,omitempty"`
}

// AsChild strips the attributes a child scope must not expose when embedded
// in its parent's view.
func (v *ScopeView) AsChild() *ScopeView {
	child := *v
	child.Multi = nil
	child.ParentID = nil
	child.Childs = nil
	child.NCities = nil
	return &child
}

// ScopeUpdate carries the mutable scope attributes. Nil fields are left
// untouched by an update.
type ScopeUpdate struct {
	Name     *string   `json:"name,omitempty"`
	Location []float64 `json:"location,omitempty"`
	Zoom     *int      `json:"zoom,omitempty"`
	Status   *int      `json:"status,omitempty"`
	Schema   *string   `json:"dbschema,omitempty"`
	Timezone *string   `json:"timezone,omitempty"`
}

// NewScopeRequest describes a scope to provision. Location is [lat, lng].
type NewScopeRequest struct {
	Name     string    `json:"name"`
	Location []float64 `json:"location,omitempty"`
	Zoom     *int      `json:"zoom,omitempty"`
	Multi    bool      `json:"multi"`
	ParentID *string   `json:"parent_id,omitempty"`
	Timezone string    `json:"timezone,omitempty"`
}
