package monitor

import (
	"fmt"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/breaker"
)

// level grades value against threshold. ok is false below the threshold.
func level(value, threshold, multiplier float64) (Level, bool) {
	if value <= threshold {
		return "", false
	}
	if multiplier > 0 && value > threshold*multiplier {
		return LevelCritical, true
	}
	return LevelWarning, true
}

// Evaluate turns a snapshot into the list of active alerts.
func Evaluate(s *Snapshot, t Thresholds) []Alert {
	var alerts []Alert

	threshold := func(typ AlertType, value, limit float64, format string) {
		lvl, ok := level(value, limit, t.CriticalMultiplier)
		if !ok {
			return
		}
		alerts = append(alerts, Alert{
			Type:      typ,
			Level:     lvl,
			Message:   fmt.Sprintf(format, value, limit),
			Value:     value,
			Threshold: limit,
		})
	}

	threshold(AlertPendingEvents, float64(s.Events.Pending), float64(t.PendingEvents),
		"%.0f events waiting to be routed (threshold %.0f)")
	threshold(AlertRetryQueue, float64(s.RetryQueue.Depth), float64(t.RetryQueue),
		"%.0f events in the retry queue (threshold %.0f)")
	threshold(AlertDeadLetter, float64(s.DeadLetters.Total), float64(t.DeadLetters),
		"%.0f unreplayed dead letters (threshold %.0f)")
	threshold(AlertErrorRate, s.Deliveries.ErrorRate, t.ErrorRate,
		"delivery error rate %.1f%% (threshold %.1f%%)")

	for _, c := range s.Circuits {
		if c.State != breaker.StateOpen {
			continue
		}
		alerts = append(alerts, Alert{
			Type:      AlertCircuitBreaker,
			Level:     LevelWarning,
			Subject:   c.Service,
			Message:   fmt.Sprintf("circuit open for %s", c.Service),
			Value:     float64(c.FailureCount),
			Threshold: float64(c.Threshold),
		})
	}

	return alerts
}

// Grade derives overall health from the active alerts.
func Grade(alerts []Alert) HealthStatus {
	status := HealthHealthy
	for _, a := range alerts {
		if a.Level == LevelCritical {
			return HealthCritical
		}
		status = HealthDegraded
	}
	return status
}
