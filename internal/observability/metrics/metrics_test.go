package metrics

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("erp_system", "netsuite"),
		attribute.String("customer_id", "456"),
		attribute.String("status", "Matched"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	var sawERPSystem, sawStatus bool
	for _, a := range attrs {
		switch a.Key {
		case "erp_system":
			sawERPSystem = true
		case "status":
			sawStatus = true
		case "customer_id":
			t.Fatalf("customer_id should have been dropped as high-cardinality")
		}
	}
	if !sawERPSystem {
		t.Fatalf("expected erp_system to be retained")
	}
	if !sawStatus {
		t.Fatalf("expected status to be retained")
	}
}
