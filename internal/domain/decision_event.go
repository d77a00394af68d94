package domain

// DecisionType telemetry record type.
type DecisionType string

const (
	DecisionTypeDCACheck DecisionType = "dca_check"
	DecisionTypeTPCheck  DecisionType = "tp_check"
)

// DecisionEventRecord bundles a telemetry record with its store index.
type DecisionEventRecord struct {
	Index uint64
	Type  DecisionType
	// Event is either DCACheck or TPCheck
	Event any
}
