package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/breaker"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

func TestEvaluate_Thresholds(t *testing.T) {
	th := Thresholds{PendingEvents: 100, RetryQueue: 50, DeadLetters: 10, ErrorRate: 10, CriticalMultiplier: 2}

	tests := []struct {
		name      string
		snapshot  Snapshot
		wantType  AlertType
		wantLevel Level
		wantNone  bool
	}{
		{
			name:     "at threshold is quiet",
			snapshot: Snapshot{Events: EventCounts{Pending: 100}},
			wantNone: true,
		},
		{
			name:      "pending above threshold warns",
			snapshot:  Snapshot{Events: EventCounts{Pending: 150}},
			wantType:  AlertPendingEvents,
			wantLevel: LevelWarning,
		},
		{
			name:      "pending at multiplier is still warning",
			snapshot:  Snapshot{Events: EventCounts{Pending: 200}},
			wantType:  AlertPendingEvents,
			wantLevel: LevelWarning,
		},
		{
			name:      "pending above multiplier is critical",
			snapshot:  Snapshot{Events: EventCounts{Pending: 201}},
			wantType:  AlertPendingEvents,
			wantLevel: LevelCritical,
		},
		{
			name:      "retry queue",
			snapshot:  Snapshot{RetryQueue: RetryQueueView{Depth: 51}},
			wantType:  AlertRetryQueue,
			wantLevel: LevelWarning,
		},
		{
			name:      "dead letters critical",
			snapshot:  Snapshot{DeadLetters: domain.DeadLetterStats{Total: 25}},
			wantType:  AlertDeadLetter,
			wantLevel: LevelCritical,
		},
		{
			name:      "error rate",
			snapshot:  Snapshot{Deliveries: DeliveryView{ErrorRate: 12.5}},
			wantType:  AlertErrorRate,
			wantLevel: LevelWarning,
		},
		{
			name: "open circuit is always a warning",
			snapshot: Snapshot{Circuits: []breaker.Status{
				{Service: "financeiro", State: breaker.StateOpen, Threshold: 5},
				{Service: "crm", State: breaker.StateHalfOpen},
			}},
			wantType:  AlertCircuitBreaker,
			wantLevel: LevelWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := Evaluate(&tt.snapshot, th)
			if tt.wantNone {
				assert.Empty(t, alerts)
				return
			}
			require.Len(t, alerts, 1)
			assert.Equal(t, tt.wantType, alerts[0].Type)
			assert.Equal(t, tt.wantLevel, alerts[0].Level)
			assert.NotEmpty(t, alerts[0].Message)
		})
	}
}

func TestEvaluate_CircuitSubject(t *testing.T) {
	alerts := Evaluate(&Snapshot{Circuits: []breaker.Status{
		{Service: "operacao", State: breaker.StateOpen},
	}}, DefaultThresholds())

	require.Len(t, alerts, 1)
	assert.Equal(t, "operacao", alerts[0].Subject)
}

func TestGrade(t *testing.T) {
	assert.Equal(t, HealthHealthy, Grade(nil))
	assert.Equal(t, HealthDegraded, Grade([]Alert{{Level: LevelWarning}}))
	assert.Equal(t, HealthCritical, Grade([]Alert{{Level: LevelWarning}, {Level: LevelCritical}}))
}
