package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// ActiveJobsKey is the fixed key the active-job snapshot is stored under.
const ActiveJobsKey = "reports.activeJobs"

// SnapshotRepo stores an ordered list of job ids as a JSON array under a
// single key.
type SnapshotRepo struct {
	kv  KV
	key string
}

func NewSnapshotRepo(kv KV, key string) *SnapshotRepo {
	if key == "" {
		key = ActiveJobsKey
	}
	return &SnapshotRepo{kv: kv, key: key}
}

// Load returns the stored ids, or nil when nothing has been saved yet.
func (r *SnapshotRepo) Load(ctx context.Context) ([]string, error) {
	raw, ok, err := r.kv.Get(ctx, r.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.key, err)
	}
	return ids, nil
}

func (r *SnapshotRepo) Save(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.key, err)
	}
	return r.kv.Put(ctx, r.key, raw)
}
