package search

import (
	"errors"
	"fmt"
)

// Item is one result produced by a provider. Lower scores rank higher.
type Item struct {
	ID          string `json:"id"`
	Score       int64  `json:"score"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
	Provider    string `json:"provider"`
	Data        any    `json:"data,omitempty"`

	priority int
	arrival  int64
}

// Capability is a provider capability flag.
type Capability uint8

const (
	// ExplicitOnly providers run only when the query starts with their filter prefix.
	ExplicitOnly Capability = 1 << iota
	// SupportsSync providers can answer without ever returning Pending.
	SupportsSync
	// WantsMore providers are slow or expensive and run only when more results are requested.
	WantsMore
)

// Info is the static description of a provider.
type Info struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Priority     int        `json:"priority"`
	FilterPrefix string     `json:"filter_prefix"`
	Capabilities Capability `json:"capabilities"`
}

func (i Info) Has(c Capability) bool {
	return i.Capabilities&c != 0
}

// Flags are the per-query options requested by the caller.
type Flags uint8

const (
	FlagWantsMore Flags = 1 << iota
	FlagSynchronous
)

var (
	ErrProviderFailed   = errors.New("provider failed")
	ErrProviderNotFound = errors.New("provider not found")
)

// ProviderError is a fault scoped to one provider during one search.
type ProviderError struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderFailed
}

type NotFoundError struct {
	Provider string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("provider not found: %s", e.Provider)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrProviderNotFound
}
