package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/race-sync/internal/model"
)

// failure is printed when a command cannot produce its summary.
type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}

// report prints a summary and turns an unsuccessful one into errUnsuccessful
// so main sets the exit status without printing twice.
func report(w io.Writer, v any, success bool) error {
	if err := printJSON(w, v); err != nil {
		return err
	}
	if !success {
		return errUnsuccessful
	}
	return nil
}

// parseDate parses a yyyy-MM-dd flag value; empty means today.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		y, m, d := time.Now().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(model.ISODateLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid date %q, want yyyy-mm-dd", s)
	}
	return t, nil
}
