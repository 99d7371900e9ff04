package loop

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/runloop/internal/runlog"
	"github.com/nextlevelbuilder/runloop/internal/state"
)

// Resumed is a prior run's state loaded for continuation: the restored
// context, the replayed configuration, and the iteration to resume at.
type Resumed struct {
	Context *state.Context
	Config  Config
	Next    int
	Parent  string
}

// LoadResume restores a prior run's context from its snapshot and
// replays its recorded configuration. iteration selects the snapshot;
// zero or negative picks the latest one. The resumed run starts at the
// iteration after the snapshot.
func LoadResume(outputs, runID string, iteration int) (*Resumed, error) {
	dir, err := runlog.OpenRunDir(outputs, runID)
	if err != nil {
		return nil, err
	}

	if iteration <= 0 {
		iteration, err = latestSnapshot(dir)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(dir.SnapshotPath(iteration))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	c, err := state.FromSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("restore run %s iteration %d: %w", runID, iteration, err)
	}

	cfg, err := replayConfig(dir.EventsPath())
	if err != nil {
		return nil, err
	}

	return &Resumed{Context: c, Config: cfg, Next: iteration + 1, Parent: runID}, nil
}

// latestSnapshot finds the highest iteration with a persisted
// snapshot.
func latestSnapshot(dir runlog.RunDir) (int, error) {
	entries, err := os.ReadDir(dir.Snapshots)
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}

	var iters []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "iter_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "iter_"), ".json"))
		if err != nil {
			continue
		}
		iters = append(iters, n)
	}
	if len(iters) == 0 {
		return 0, fmt.Errorf("run has no snapshots under %s", dir.Snapshots)
	}
	sort.Ints(iters)
	return iters[len(iters)-1], nil
}

// replayConfig recovers the run configuration from the prior run's
// config event. A missing config event falls back to defaults so old
// runs stay resumable.
func replayConfig(eventsPath string) (Config, error) {
	events, err := runlog.ReadEvents(eventsPath)
	if err != nil && len(events) == 0 {
		return Config{}, fmt.Errorf("read events: %w", err)
	}

	for _, ev := range events {
		if ev.Phase != runlog.PhaseConfig {
			continue
		}
		raw, ok := ev.Payload["config"]
		if !ok {
			continue
		}
		data, err := json.Marshal(raw)
		if err != nil {
			return Config{}, fmt.Errorf("replay config: %w", err)
		}
		cfg := DefaultConfig()
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("replay config: %w", err)
		}
		return cfg, nil
	}
	return DefaultConfig(), nil
}
