package model

import "strconv"

// RowWidth is the number of columns in a report-sheet entry row.
const RowWidth = 16

// ColumnMap gives the 0-based offset of each field within an entry row,
// relative to the race label's column. -1 means the field is not on the
// sheet.
type ColumnMap struct {
	Horse        int `mapstructure:"horse"`
	Double       int `mapstructure:"double"`
	Constant     int `mapstructure:"constant"`
	P3           int `mapstructure:"p3"`
	CorrectP3    int `mapstructure:"correct_p3"`
	ML           int `mapstructure:"ml"`
	LiveOdds     int `mapstructure:"live_odds"`
	SharpPercent int `mapstructure:"sharp_percent"`
	Action       int `mapstructure:"action"`
	DoubleDelta  int `mapstructure:"double_delta"`
	P3Delta      int `mapstructure:"p3_delta"`
	WillPay2     int `mapstructure:"will_pay_2"`
	XFigure      int `mapstructure:"x_figure"`
	WillPay1P3   int `mapstructure:"will_pay_1_p3"`
	WinPool      int `mapstructure:"win_pool"`
	VetoRating   int `mapstructure:"veto_rating"`
	WillPay      int `mapstructure:"will_pay"`
}

// DefaultColumns is the standard report-sheet row layout.
func DefaultColumns() ColumnMap {
	return ColumnMap{
		Horse:        0,
		Double:       1,
		Constant:     2,
		P3:           3,
		CorrectP3:    4,
		ML:           5,
		LiveOdds:     6,
		SharpPercent: 7,
		Action:       8,
		DoubleDelta:  9,
		P3Delta:      10,
		WillPay2:     11,
		XFigure:      12,
		WillPay1P3:   13,
		WinPool:      14,
		VetoRating:   15,
		WillPay:      -1,
	}
}

// Race block layout on a dated report sheet. The label cell anchors the
// block; age, type and purse follow it on the same row, then the WINNER
// tag and the winning horse number. Entry rows start on the next row.
const (
	BlockMetaOffset   = 1
	BlockWinnerTagCol = 4
	BlockWinnerCol    = 5
	WinnerTag         = "WINNER"
)

// RaceLabel is the literal that anchors race n's block.
func RaceLabel(n int) string {
	return "RACE " + strconv.Itoa(n)
}
