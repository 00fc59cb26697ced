// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for roomgate.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Admission attributes
	AdmissionRoomKey   = "admission.room"
	AdmissionActionKey = "admission.action"
	AdmissionPhaseKey  = "admission.phase"
	AdmissionKindKey   = "admission.kind"

	// Ticket attributes
	TicketIDKey     = "ticket.id"
	TicketResultKey = "ticket.result"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// AdmissionAttributes creates admission-attempt span attributes. Empty
// values are skipped so spans never carry blank labels.
func AdmissionAttributes(roomID, action, phase, kind string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if roomID != "" {
		attrs = append(attrs, attribute.String(AdmissionRoomKey, roomID))
	}
	if action != "" {
		attrs = append(attrs, attribute.String(AdmissionActionKey, action))
	}
	if phase != "" {
		attrs = append(attrs, attribute.String(AdmissionPhaseKey, phase))
	}
	if kind != "" {
		attrs = append(attrs, attribute.String(AdmissionKindKey, kind))
	}
	return attrs
}

// TicketAttributes creates join-ticket span attributes.
func TicketAttributes(ticketID, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TicketIDKey, ticketID),
		attribute.String(TicketResultKey, result),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
