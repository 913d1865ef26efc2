package simulator

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"buddywalk/internal/conversation"
	"buddywalk/internal/database"
	"buddywalk/internal/engine"
	"buddywalk/internal/handlers"
	"buddywalk/internal/middleware"
	"buddywalk/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulationAgainstEngine(t *testing.T) {
	if testing.Short() {
		t.Skip("simulation runs for several seconds")
	}

	system := actor.NewActorSystem()
	defer system.Shutdown()
	metrics := utils.NewMetricsCollector()
	eng := engine.NewEngine(system, database.NewMemoryDB(), conversation.SystemClock{}, metrics, 2*time.Second)
	server := handlers.NewServer(system, eng, metrics, middleware.NewTokenIssuer("sim-test", time.Hour), 5*time.Second)
	ts := httptest.NewServer(handlers.NewRouter(server, nil, false))
	defer ts.Close()

	sim := NewEnhancedSimulator(SimConfig{
		NumUsers:         3,
		SimulationTime:   3 * time.Second,
		MessageFrequency: 36000,
		ReadFrequency:    18000,
		EngineURL:        ts.URL,
		HTTPClient:       ts.Client(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, sim.Run(ctx))

	m := sim.GetMetrics()
	assert.Equal(t, 3, m.TotalUsers)
	assert.Positive(t, m.MessagesSent)
	assert.Equal(t, m.MessagesSent, m.EncryptedSent)
	assert.Zero(t, m.Undecryptable)
	assert.Zero(t, m.ErrorCount)
}

func TestGetZipfNumberStaysInRange(t *testing.T) {
	sim := NewEnhancedSimulator(SimConfig{ZipfS: 1.5})
	for i := 0; i < 1000; i++ {
		n := sim.getZipfNumber(5)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 5)
	}
	assert.Equal(t, 0, sim.getZipfNumber(1))
}
