package health

import (
	"encoding/json"
	"net/http"
)

// ReadinessReporter is implemented by the invalidation consumer.
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// Readiness reports ready once the invalidation consumer holds partitions.
// A nil reporter means invalidation is off and the service is always ready.
func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status       string  `json:"status"`
			Invalidation string  `json:"invalidation"`
			Partitions   []int32 `json:"partitions,omitempty"`
		}
		out := resp{Status: "ready", Invalidation: "disabled"}
		ready := true
		if rr != nil {
			var parts []int32
			ready, parts = rr.Readiness()
			out.Invalidation = "consuming"
			if ready {
				out.Partitions = parts
			} else {
				out.Status = "not_ready"
				out.Invalidation = "waiting_for_assignment"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
