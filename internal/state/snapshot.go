package state

import (
	"encoding/json"
	"fmt"
)

// snapshotV1 is the on-disk snapshot schema. Field order is fixed so
// that identical contexts serialize to identical bytes.
type snapshotV1 struct {
	SchemaVersion int     `json:"schema_version"`
	RunID         string  `json:"run_id"`
	Seq           int     `json:"seq"`
	Policy        *Policy `json:"policy,omitempty"`
	Blocks        []Block `json:"blocks"`
}

// Snapshot serializes the entire context deterministically. Block
// order is sequence order; Meta maps marshal with sorted keys, so two
// calls on the same context yield byte-identical output.
func (c *Context) Snapshot() ([]byte, error) {
	snap := snapshotV1{
		SchemaVersion: 1,
		RunID:         c.runID,
		Seq:           c.seq,
		Policy:        c.policy,
		Blocks:        c.blocks,
	}
	if snap.Blocks == nil {
		snap.Blocks = []Block{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// FromSnapshot reconstructs a context from a Snapshot payload.
// The restored context is unfrozen so a resumed run can append to it.
func FromSnapshot(data []byte) (*Context, error) {
	var snap snapshotV1
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.SchemaVersion != 1 {
		return nil, fmt.Errorf("unsupported snapshot schema version %d", snap.SchemaVersion)
	}
	if snap.RunID == "" {
		return nil, fmt.Errorf("snapshot missing run_id")
	}
	c := &Context{
		runID:  snap.RunID,
		blocks: snap.Blocks,
		seq:    snap.Seq,
		policy: snap.Policy,
	}
	// The counter must cover every committed block, even if the
	// snapshot's seq field was hand-edited.
	for _, b := range c.blocks {
		if b.Seq > c.seq {
			c.seq = b.Seq
		}
	}
	return c, nil
}
