package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"megasap/internal/config"
	"megasap/internal/game"
	"megasap/internal/game/spatial"
)

func benchPair(t *testing.T, sortFrequency, ticks int) (sap, brute result) {
	t.Helper()

	sapCfg := spatial.Config{MaxEdges: 72, MaxTouching: 36, SortFrequency: sortFrequency, Insert: spatial.InsertSorted}
	demo := config.DefaultDemo()
	demo.Entities = 36
	demo.DestroyOnHit = false

	var results []result
	for _, m := range []string{config.ModeSAP, config.ModeBruteForce} {
		demo.Broadphase = m
		eng, err := game.NewEngine(game.EngineConfig{Demo: demo, Broadphase: sapCfg, Audit: sortFrequency > 1})
		require.NoError(t, err)
		results = append(results, runMode(eng, ticks))
	}
	return results[0], results[1]
}

func TestCompareExactWhenSortingEverySweep(t *testing.T) {
	sap, brute := benchPair(t, 1, 1500)

	assert.Equal(t, config.ModeSAP, sap.mode)
	assert.Equal(t, config.ModeBruteForce, brute.mode)
	assert.Equal(t, brute.pairs, sap.pairs)
	assert.NoError(t, compare(sap, brute, 1))
}

func TestCompareToleratesThrottledSort(t *testing.T) {
	for _, freq := range []int{2, 4, 8} {
		sap, brute := benchPair(t, freq, 3000)

		assert.NoError(t, compare(sap, brute, freq), "sortfreq=%d", freq)
		assert.NotZero(t, sap.stats.AuditedPairs, "sortfreq=%d", freq)
		assert.LessOrEqual(t, sap.stats.MissedPairs, sap.stats.AuditedPairs, "sortfreq=%d", freq)
	}
}

func TestCompareRejectsMismatchedTotals(t *testing.T) {
	sap := result{mode: config.ModeSAP, pairs: 10}
	brute := result{mode: config.ModeBruteForce, pairs: 12}

	assert.Error(t, compare(sap, brute, 1))

	sap.stats.Broadphase.TouchingOverflows = 3
	assert.NoError(t, compare(sap, brute, 1), "overflows explain the gap")
}
