package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-trading/launchguard/internal/alert"
	"github.com/nexus-trading/launchguard/internal/conviction"
	"github.com/nexus-trading/launchguard/internal/entry"
	"github.com/nexus-trading/launchguard/internal/feedcounters"
	"github.com/nexus-trading/launchguard/internal/heat"
	"github.com/nexus-trading/launchguard/internal/microstructure"
	"github.com/nexus-trading/launchguard/internal/pipeline"
)

func buildCollector(t *testing.T) (*Collector, *microstructure.Tracker, *alert.Notifier, *entry.Engine) {
	t.Helper()
	counters := feedcounters.New()
	micro := microstructure.New()
	notifier := alert.New(16, 0)
	heatCtl := heat.New(heat.Config{WindowMin: 15, MaxAcceptsPerHr: 1000, BaseMinScore: 60, BaseApexScore: 80, BaseMinBuyers: 4, BaseMinUnique: 3, CeilScore: 100, CeilBuyers: 20})
	cohort := conviction.NewCohort(nil)
	deployer := conviction.NewDeployerStats()
	eng := entry.New(entry.Config{ReevalCooldownSec: 1, AcceptCooldownSec: 60, CohortDecaySec: 30}, micro, heatCtl, cohort, deployer, nil, notifier)

	return NewCollector(counters, micro, eng, notifier), micro, notifier, eng
}

func TestSnapshot_ReportsSchemaVersion(t *testing.T) {
	c, _, _, _ := buildCollector(t)
	snap := c.Snapshot()
	assert.Equal(t, SchemaVersion, snap.SchemaVersion)
}

func TestSnapshot_ReflectsPendingAndMicrostructure(t *testing.T) {
	c, micro, _, eng := buildCollector(t)

	micro.Track("mint1", pipeline.OriginPumpfun, 1000, "buy", func(string) bool { return true })
	eng.Evaluate(context.Background(), "mint1", pipeline.OriginPumpfun, 1000, "")

	snap := c.Snapshot()
	assert.Equal(t, 1, snap.Decisions.Pending)
	assert.Equal(t, 1, snap.Microstructure.TrackedMints)
}

func TestSnapshot_SummarizesAcceptsAndRejects(t *testing.T) {
	c, _, notifier, _ := buildCollector(t)

	notifier.BumpSummary(string(pipeline.DecisionAcceptedSmall))
	notifier.BumpSummary(string(pipeline.DecisionAcceptedApex))
	notifier.BumpSummary(string(pipeline.DecisionRejectedFatal))
	notifier.BumpSummary(string(pipeline.DecisionRejectedSoft))

	snap := c.Snapshot()
	assert.EqualValues(t, 2, snap.Decisions.AcceptsDryRun24h)
	assert.EqualValues(t, 1, snap.Decisions.Rejects24h)
	assert.EqualValues(t, 1, snap.Decisions.SoftRejects24h)

	// Snapshot uses a non-draining peek, so repeated reads don't steal
	// counts from the periodic summary alert.
	snap2 := c.Snapshot()
	assert.EqualValues(t, 2, snap2.Decisions.AcceptsDryRun24h)
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	c, _, _, _ := buildCollector(t)
	srv := NewServer(c)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
}

func TestHandleStatus_ReturnsSnapshotJSON(t *testing.T) {
	c, _, _, _ := buildCollector(t)
	srv := NewServer(c)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, SchemaVersion, snap.SchemaVersion)
}
