// Command bench runs the donut world headless in both broad phase modes,
// checks that they report the same pairs and records the timings.
//
// Profiling:
//
//	go run ./cmd/bench -entities 200 -ticks 5000 -profile cpu
//	go tool pprof -http=":8000" cpu.pprof
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/profile"

	"megasap/internal/config"
	"megasap/internal/game"
	"megasap/internal/game/spatial"
	"megasap/internal/render"
	"megasap/internal/store"
)

type result struct {
	mode      string
	nsPerTick float64
	pairs     uint64
	stats     game.EngineStats
}

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred profile and store cleanup always
// happen before the process exits.
func run() int {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	}
	appConfig := config.Load()

	ticks := flag.Int("ticks", 1000, "Ticks per mode")
	entities := flag.Int("entities", 36, "Donuts to spawn")
	touching := flag.Int("touching", 0, "Active set size (default: entities)")
	sortFreq := flag.Int("sortfreq", appConfig.Broadphase.SortFrequency, "Sweeps between full sorts")
	insert := flag.String("insert", appConfig.Broadphase.InsertMode, "Insert strategy: sorted or append")
	seed := flag.Int64("seed", appConfig.Demo.Seed, "Scene RNG seed")
	prof := flag.String("profile", "", "Profile the run: cpu or mem")
	verbose := flag.Bool("v", false, "Log broad phase events and dump the final edge list")
	dbPath := flag.String("db", appConfig.Storage.BenchDBPath, "SQLite results file (empty to skip)")
	history := flag.Int("history", 5, "Recent runs to print")
	frame := flag.String("png", "", "Write the final SAP frame to this PNG file")
	flag.Parse()

	mode, err := spatial.ParseInsertStrategy(*insert)
	if err != nil {
		log.Printf("❌ %v", err)
		return 2
	}
	if *touching <= 0 {
		*touching = max(*entities, 1)
	}

	sapCfg := spatial.Config{
		MaxEdges:      max(*entities*2, 2),
		MaxTouching:   *touching,
		SortFrequency: *sortFreq,
		Insert:        mode,
	}
	if err := sapCfg.Validate(); err != nil {
		log.Printf("❌ %v", err)
		return 2
	}
	if sapCfg.SortMayDrift() {
		log.Printf("⚠️ -sortfreq %d is above %d: expect missed pairs between sorts",
			sapCfg.SortFrequency, spatial.DriftSortFrequency)
	}

	demo := appConfig.Demo
	demo.Entities = *entities
	demo.Seed = *seed
	demo.DestroyOnHit = false
	if err := demo.Validate(); err != nil {
		log.Printf("❌ %v", err)
		return 2
	}

	switch *prof {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		log.Printf("❌ Unknown profile %q (want cpu or mem)", *prof)
		return 2
	}

	log.Printf("🏁 Bench: %d donuts, %d ticks, touching=%d, sortfreq=%d, insert=%s, seed=%d",
		*entities, *ticks, sapCfg.MaxTouching, sapCfg.SortFrequency, sapCfg.Insert, demo.Seed)

	var results []result
	for _, m := range []string{config.ModeSAP, config.ModeBruteForce} {
		demo.Broadphase = m
		eng, err := game.NewEngine(game.EngineConfig{Demo: demo, Broadphase: sapCfg, Audit: sapCfg.SortFrequency > 1})
		if err != nil {
			log.Printf("❌ Engine init failed: %v", err)
			return 1
		}
		if *verbose && m == config.ModeSAP {
			eng.SetObserver(spatial.LogObserver{LogPairs: true})
		}

		r := runMode(eng, *ticks)
		results = append(results, r)
		log.Printf("   %-10s %10.0f ns/tick  %8d pairs  %d rejected", m, r.nsPerTick, r.pairs, r.stats.Rejected)

		if m == config.ModeSAP {
			if *verbose {
				eng.LogEdges()
			}
			if *frame != "" {
				writeFrame(*frame, eng.GetSnapshot())
			}
		}
	}

	code := 0
	if err := compare(results[0], results[1], sapCfg.SortFrequency); err != nil {
		log.Printf("❌ %v", err)
		code = 1
	}

	if *dbPath != "" {
		record(*dbPath, results, *entities, *ticks, sapCfg, *history)
	}
	return code
}

// runMode steps eng headless and times it. The audit recount is not part
// of the measured broad phase, but it does land in ns/tick.
func runMode(eng *game.Engine, ticks int) result {
	start := time.Now()
	for i := 0; i < ticks; i++ {
		eng.Step()
	}
	elapsed := time.Since(start)

	stats := eng.GetStats()
	return result{
		mode:      stats.Mode,
		nsPerTick: float64(elapsed.Nanoseconds()) / float64(max(ticks, 1)),
		pairs:     stats.TotalPairs,
		stats:     stats,
	}
}

// compare checks the SAP run against brute force. Sorting every sweep must
// reproduce brute force exactly. A throttled sort may miss pairs for a few
// ticks, after which the two worlds bounce differently, so totals are only
// reported along with the missed pair rate from the audit.
func compare(sap, brute result, sortFrequency int) error {
	overflows := sap.stats.Broadphase.TouchingOverflows
	switch {
	case sortFrequency > 1:
		rate := 0.0
		if sap.stats.AuditedPairs > 0 {
			rate = float64(sap.stats.MissedPairs) / float64(sap.stats.AuditedPairs)
		}
		log.Printf("📉 Sort every %d sweeps: missed %d of %d pairs (%.2f%%), totals sap=%d bruteforce=%d",
			sortFrequency, sap.stats.MissedPairs, sap.stats.AuditedPairs, rate*100, sap.pairs, brute.pairs)
		if overflows > 0 {
			log.Printf("⚠️ %d active set overflows, raise -touching", overflows)
		}
		return nil
	case sap.pairs != brute.pairs && overflows > 0:
		log.Printf("⚠️ Pair totals differ (%d vs %d): %d active set overflows, raise -touching",
			sap.pairs, brute.pairs, overflows)
		return nil
	case sap.pairs != brute.pairs:
		return fmt.Errorf("pair totals differ: sap=%d bruteforce=%d", sap.pairs, brute.pairs)
	default:
		log.Printf("✅ Both modes reported %d pairs (speedup %.2fx)", sap.pairs, brute.nsPerTick/sap.nsPerTick)
		return nil
	}
}

func record(path string, results []result, entities, ticks int, cfg spatial.Config, history int) {
	db, err := store.OpenDB(path)
	if err != nil {
		log.Printf("⚠️ Results not saved: %v", err)
		return
	}
	defer db.Close()

	for _, r := range results {
		row := store.RunRow{
			Mode:          r.mode,
			Entities:      entities,
			Ticks:         ticks,
			SortFrequency: cfg.SortFrequency,
			InsertMode:    cfg.Insert.String(),
			NsPerTick:     r.nsPerTick,
			Pairs:         r.pairs,
		}
		if _, err := db.RecordRun(row); err != nil {
			log.Printf("⚠️ %v", err)
			return
		}

		best, err := db.BestRun(r.mode, entities)
		if err != nil {
			log.Printf("⚠️ %v", err)
			continue
		}
		if best != nil {
			log.Printf("🏆 Best %s @ %d donuts: %.0f ns/tick (%s, sortfreq=%d, run #%d)",
				r.mode, entities, best.NsPerTick, best.InsertMode, best.SortFrequency, best.ID)
		}
	}

	runs, err := db.RecentRuns(history)
	if err != nil {
		log.Printf("⚠️ %v", err)
		return
	}
	log.Printf("📜 Last %d runs (%s):", len(runs), path)
	for _, r := range runs {
		log.Printf("   #%-4d %s  %-10s %5d donuts %10.0f ns/tick  %s/%d",
			r.ID, r.CreatedAt.Format(time.DateTime), r.Mode, r.Entities, r.NsPerTick, r.InsertMode, r.SortFrequency)
	}
}

func writeFrame(path string, snap *game.WorldSnapshot) {
	f, err := os.Create(path)
	if err != nil {
		log.Printf("⚠️ Frame not written: %v", err)
		return
	}
	defer f.Close()

	r := render.NewRenderer(render.Options{Scale: 2, ShowBounds: true})
	if err := r.EncodePNG(f, snap); err != nil {
		log.Printf("⚠️ Frame not written: %v", err)
		return
	}
	log.Printf("🖼️  Frame written to %s", path)
}
