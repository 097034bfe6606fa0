package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var raceIDPattern = regexp.MustCompile(`^([A-Z0-9]+)_(\d{8})_(\d{1,2})$`)

// RaceKey is the parsed form of an internal race identifier
// (TRACKCODE_YYYYMMDD_RACENUMBER).
type RaceKey struct {
	TrackCode  string
	DateToken  string // YYYYMMDD
	RaceNumber int
}

// ParseRaceID splits an internal race id into its parts.
func ParseRaceID(id string) (RaceKey, error) {
	m := raceIDPattern.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return RaceKey{}, eris.Errorf("model: malformed race id %q", id)
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return RaceKey{}, eris.Wrapf(err, "model: race number in %q", id)
	}
	return RaceKey{TrackCode: m[1], DateToken: m[2], RaceNumber: n}, nil
}

// String renders the internal race id.
func (k RaceKey) String() string {
	return fmt.Sprintf("%s_%s_%d", k.TrackCode, k.DateToken, k.RaceNumber)
}

// Date parses the key's date token.
func (k RaceKey) Date() (time.Time, error) {
	d, err := time.Parse("20060102", k.DateToken)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "model: date token %q", k.DateToken)
	}
	return d, nil
}

// DateToken renders d as the YYYYMMDD token used in race ids.
func DateToken(d time.Time) string {
	return d.Format("20060102")
}

// NewRaceKey builds a key for a track, date, and race number.
func NewRaceKey(trackCode string, d time.Time, raceNumber int) RaceKey {
	return RaceKey{TrackCode: strings.ToUpper(trackCode), DateToken: DateToken(d), RaceNumber: raceNumber}
}

// ExternalRaceID renders the backend's race id: "TRACK NAME MM-DD-YY Race NN".
func ExternalRaceID(trackName string, d time.Time, raceNumber int) string {
	return fmt.Sprintf("%s %s Race %02d", strings.ToUpper(strings.TrimSpace(trackName)), d.Format("01-02-06"), raceNumber)
}

// EntryKey is the composite key of an entry row.
func EntryKey(raceID string, horseNumber int) string {
	return raceID + "|" + strconv.Itoa(horseNumber)
}
