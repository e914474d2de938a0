package observability

import "go.opentelemetry.io/otel/attribute"

// Attribute keys used on archgate spans and metrics.
var (
	AttrOperation = attribute.Key("archgate.operation")
	AttrRunID     = attribute.Key("archgate.run_id")
	AttrControl   = attribute.Key("archgate.control")
	AttrACRID     = attribute.Key("archgate.acr.id")
	AttrDecision  = attribute.Key("archgate.acr.decision")
)
