package config

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Track is one entry of the track roster.
type Track struct {
	Name     string `yaml:"name" json:"name"`
	Code     string `yaml:"code" json:"code"`
	Workbook string `yaml:"workbook" json:"workbook"`
}

type roster struct {
	Tracks []Track `yaml:"tracks"`
}

// Tracks indexes the roster by upper-cased code.
type Tracks map[string]Track

// Codes returns the track codes in sorted order.
func (t Tracks) Codes() []string {
	out := make([]string, 0, len(t))
	for code := range t {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Get looks up a track by code, case-insensitively.
func (t Tracks) Get(code string) (Track, bool) {
	tr, ok := t[strings.ToUpper(strings.TrimSpace(code))]
	return tr, ok
}

// LoadTracks reads the YAML track roster at path.
func LoadTracks(path string) (Tracks, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read tracks file %s", path)
	}
	return ParseTracks(data)
}

// ParseTracks decodes a roster. Every track needs a name, a code and a
// workbook path; codes must be unique.
func ParseTracks(data []byte) (Tracks, error) {
	var r roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "config: parse tracks")
	}
	out := make(Tracks, len(r.Tracks))
	for i, tr := range r.Tracks {
		tr.Code = strings.ToUpper(strings.TrimSpace(tr.Code))
		tr.Name = strings.TrimSpace(tr.Name)
		if tr.Code == "" || tr.Name == "" || tr.Workbook == "" {
			return nil, eris.Errorf("config: track %d needs name, code and workbook", i)
		}
		if _, dup := out[tr.Code]; dup {
			return nil, eris.Errorf("config: duplicate track code %s", tr.Code)
		}
		out[tr.Code] = tr
	}
	return out, nil
}
