// Package domain defines the Communicator's Dispatch contract and template
// registry (spec.md §4.5).
package domain

import (
	"context"
	"errors"
)

// Kind mirrors the communication/domain.Kind values the Orchestrator
// branches on (spec.md §4.4 Communicate(...)).
type Kind string

const (
	KindCustomerClarification Kind = "CustomerClarification"
	KindInternalAlert         Kind = "InternalAlert"
	KindConfirmation          Kind = "Confirmation"
)

// Priority is carried on the Event as given by the caller. Dispatch does not
// read it: rate limiting and delivery order are the same for every priority.
type Priority string

const (
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
)

// DeliveryStatus mirrors communication/domain.DeliveryStatus.
type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "Queued"
	DeliverySent      DeliveryStatus = "Sent"
	DeliveryDelivered DeliveryStatus = "Delivered"
	DeliveryFailed    DeliveryStatus = "Failed"
)

// Event is the Communicator's Dispatch input (spec.md §4.5).
type Event struct {
	TransactionID *string
	Kind          Kind
	Recipient     string
	TemplateName  string
	Data          map[string]any
	Priority      Priority
}

// DispatchResult is the Dispatch call's result. Dispatch delivers
// synchronously, so Status is Sent on success or Failed when rate limiting,
// rendering or delivery fails; Dispatch never returns Queued.
type DispatchResult struct {
	DeliveryID string
	Status     DeliveryStatus
}

// Template is one registered {name -> (subject, body, required_fields)}
// entry (spec.md §4.5).
type Template struct {
	Name            string
	SubjectTemplate string
	BodyTemplate    string
	RequiredFields  []string
}

// TemplateRegistry resolves a template by name.
type TemplateRegistry interface {
	Lookup(name string) (Template, bool)
}

// Service is the Communicator's contract (spec.md §4.5).
type Service interface {
	Dispatch(ctx context.Context, event Event) (DispatchResult, error)
}

var (
	ErrTemplateNotFound  = errors.New("communicator: template not found")
	ErrMissingField      = errors.New("communicator: required template field missing")
	ErrInvalidRecipient  = errors.New("communicator: recipient is required")
	ErrRateLimited       = errors.New("communicator: recipient rate limit exceeded")
)
