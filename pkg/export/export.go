package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/warehousekit/dispatchd/core/engine"
	"github.com/warehousekit/dispatchd/core/engine/logging"
)

// WriteJSON writes the run report to w in JSON format.
func WriteJSON(w io.Writer, report engine.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// WriteCSV writes attempt records to w in CSV format.
func WriteCSV(w io.Writer, records []logging.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "task_id", "group", "pickup_id", "candidate", "attempt", "outcome", "latency_ms"}); err != nil {
		return err
	}
	for _, r := range records {
		rec := []string{
			r.Timestamp.Format(time.RFC3339),
			r.TaskID,
			r.Group,
			r.PickupID,
			r.Candidate,
			strconv.Itoa(r.Attempt),
			r.Outcome.Kind.String(),
			strconv.FormatInt(r.LatencyMS, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
