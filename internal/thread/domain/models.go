// Package domain maps logical conversation scopes to opaque assistant-thread
// identifiers. One binding exists per (scope, key) and is reused across calls.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Scope names a class of conversation context.
type Scope string

const (
	// ScopeGeneric is the shared free-form chat context.
	ScopeGeneric Scope = "generic"
	// ScopeSurveyEdit is the per-survey editing context.
	ScopeSurveyEdit Scope = "survey_edit"
	// ScopeSurveyAnalytics is the per-survey analytics context.
	ScopeSurveyAnalytics Scope = "survey_analytics"
	// ScopeSynthetic is a private per-job context, never shared, so synthetic
	// generation cannot pollute conversational history.
	ScopeSynthetic Scope = "synthetic"
)

// GenericKey is the fixed key for the generic scope.
const GenericKey = "global"

// Binding persists the mapping for one (scope, key) pair. The external
// thread id is opaque to this system.
type Binding struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	Scope            Scope        `gorm:"type:text;not null;uniqueIndex:ux_thread_bindings_scope_key,priority:1"`
	Key              string       `gorm:"column:binding_key;type:text;not null;uniqueIndex:ux_thread_bindings_scope_key,priority:2"`
	ExternalThreadID string       `gorm:"type:text;not null"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Binding) TableName() string { return "thread_bindings" }

type Registry interface {
	// GetOrCreate returns the external thread id bound to (scope, key),
	// creating and persisting a new thread on first use. The second return
	// reports whether this call created the binding.
	GetOrCreate(ctx context.Context, scope Scope, key string) (string, bool, error)

	// ResetGeneric discards the generic binding and creates a fresh thread.
	ResetGeneric(ctx context.Context) (string, error)

	// SeedContext posts an initial user message onto the thread bound to
	// (scope, key), creating the binding first when missing.
	SeedContext(ctx context.Context, scope Scope, key, contextText string) error

	// Delete removes a binding; used to discard throwaway synthetic threads.
	Delete(ctx context.Context, scope Scope, key string) error

	// Lock serializes message posting and run creation on the binding.
	// The returned function releases the lock.
	Lock(scope Scope, key string) func()
}

var (
	ErrInvalidScope = errors.New("invalid_thread_scope")
	ErrInvalidKey   = errors.New("invalid_thread_key")
)
