package checker

import (
	"encoding/json"

	"github.com/homelabforge/tidewatch/internal/model"
)

// encodeTrace serializes a DecisionTrace for storage on Update.DecisionTrace.
func encodeTrace(trace model.DecisionTrace) ([]byte, error) {
	return json.Marshal(trace)
}
