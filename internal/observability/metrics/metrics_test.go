package metrics

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("project_id", "123"),
		attribute.String("partner_name", "acme"),
		attribute.String("alert_type", "revenue_drop"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "project_id" && attrs[1].Key != "project_id" {
		t.Fatalf("expected project_id to be retained")
	}
	if attrs[0].Key != "alert_type" && attrs[1].Key != "alert_type" {
		t.Fatalf("expected alert_type to be retained")
	}
}

func TestFilterAttributesDropsEmptyValues(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("endpoint", ""),
		attribute.String("outcome", "ok"),
	)
	if len(attrs) != 1 {
		t.Fatalf("expected 1 attribute, got %d", len(attrs))
	}
	if attrs[0].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}
