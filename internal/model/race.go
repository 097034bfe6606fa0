package model

import "time"

// MinHorseNumber and MaxHorseNumber bound the saddle-cloth numbers a race can carry.
const (
	MinHorseNumber = 1
	MaxHorseNumber = 16
)

// MinRaceNumber and MaxRaceNumber bound the race numbers on a card.
const (
	MinRaceNumber = 1
	MaxRaceNumber = 15
)

// RaceEntry is one horse's data for one race. Nil fields are absent and
// are dropped from the JSON payload.
type RaceEntry struct {
	HorseNumber int `json:"horse_number"`

	Double      *float64 `json:"double,omitempty"`
	Constant    *float64 `json:"constant,omitempty"`
	CorrectP3   *float64 `json:"correct_p3,omitempty"`
	ML          *float64 `json:"ml,omitempty"`
	LiveOdds    *float64 `json:"live_odds,omitempty"`
	Action      *float64 `json:"action,omitempty"`
	DoubleDelta *float64 `json:"double_delta,omitempty"`
	P3Delta     *float64 `json:"p3_delta,omitempty"`
	XFigure     *float64 `json:"x_figure,omitempty"`

	P3           *string `json:"p3,omitempty"`
	SharpPercent *string `json:"sharp_percent,omitempty"`
	WillPay2     *string `json:"will_pay_2,omitempty"`
	WillPay      *string `json:"will_pay,omitempty"`
	WillPay1P3   *string `json:"will_pay_1_p3,omitempty"`
	WinPool      *string `json:"win_pool,omitempty"`
	VetoRating   *string `json:"veto_rating,omitempty"`

	RawData string `json:"raw_data,omitempty"`
}

// NumericField names one of the float-valued entry fields.
type NumericField struct {
	Name string
	Ptr  **float64
}

// NumericFields returns addressable handles to every numeric field of e,
// in declaration order.
func (e *RaceEntry) NumericFields() []NumericField {
	return []NumericField{
		{"double", &e.Double},
		{"constant", &e.Constant},
		{"correct_p3", &e.CorrectP3},
		{"ml", &e.ML},
		{"live_odds", &e.LiveOdds},
		{"action", &e.Action},
		{"double_delta", &e.DoubleDelta},
		{"p3_delta", &e.P3Delta},
		{"x_figure", &e.XFigure},
	}
}

// Race is a single race on a track's card.
type Race struct {
	RaceID     string      `json:"race_id"`
	TrackName  string      `json:"track_name"`
	TrackCode  string      `json:"track_code"`
	Date       string      `json:"date"` // yyyy-MM-dd
	RaceNumber int         `json:"race_number"`
	PostTime   string      `json:"post_time,omitempty"`
	Entries    []RaceEntry `json:"entries"`
}

// ExtractionMethod records how a winner was determined.
type ExtractionMethod string

const (
	ExtractionAPI        ExtractionMethod = "api"
	ExtractionWinnerCell ExtractionMethod = "winner_cell"
	ExtractionManual     ExtractionMethod = "manual"
)

// Valid reports whether m is one of the known extraction methods.
func (m ExtractionMethod) Valid() bool {
	switch m {
	case ExtractionAPI, ExtractionWinnerCell, ExtractionManual:
		return true
	}
	return false
}

// Confidence grades a winner determination.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Winner is the result of a race. At most one exists per RaceID.
type Winner struct {
	RaceID             string           `json:"race_id"`
	WinningHorseNumber int              `json:"winning_horse_number"`
	Payout2            *float64         `json:"payout_2,omitempty"`
	PayoutP3           *float64         `json:"payout_1_p3,omitempty"`
	ExtractionMethod   ExtractionMethod `json:"extraction_method"`
	Confidence         Confidence       `json:"confidence"`
}

// RaceMetadata holds descriptive race conditions, stored independently of
// entries and winners.
type RaceMetadata struct {
	RaceID string `json:"race_id"`
	Age    string `json:"age,omitempty"`
	Type   string `json:"type,omitempty"`
	Purse  string `json:"purse,omitempty"`
}

// SheetDateLayout is the name format of dated report sheets.
const SheetDateLayout = "01/02/06"

// ISODateLayout is the date format exchanged with the backend.
const ISODateLayout = "2006-01-02"

// SheetName returns the report sheet name for d.
func SheetName(d time.Time) string {
	return d.Format(SheetDateLayout)
}
