package scheduler

import (
	"encoding/json"
	"hash/fnv"

	"reportd/internal/task"
)

// fingerprint covers the fields that shape a job's timer. Everything else is
// re-read from the store when the job fires.
func fingerprint(t task.Task) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(t.Name))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(t.ScheduleType))
	_, _ = h.Write([]byte{0})
	// Map keys marshal sorted, so equal configs hash equally.
	b, _ := json.Marshal(t.ScheduleConfig)
	_, _ = h.Write(b)
	return h.Sum64()
}
