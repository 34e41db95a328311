package utils

import (
	"time"
)

// BRT is the Brasília time location (UTC-3, no daylight saving since 2019).
var BRT *time.Location

func init() {
	var err error
	BRT, err = time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		// Fallback: create fixed zone if tz database is not available
		BRT = time.FixedZone("BRT", -3*60*60)
	}
}

// NowBRT returns the current time in Brasília.
func NowBRT() time.Time {
	return time.Now().In(BRT)
}

// TodayBRT returns today's calendar date in Brasília as UTC midnight, the
// representation used for bond base dates.
func TodayBRT() time.Time {
	return DateOnly(NowBRT())
}

// DateOnly truncates t to its calendar date, expressed as UTC midnight.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MarketOpenTime returns the Tesouro Direto opening time (9:30 BRT) for a given date.
func MarketOpenTime(date time.Time) time.Time {
	d := date.In(BRT)
	return time.Date(d.Year(), d.Month(), d.Day(), 9, 30, 0, 0, BRT)
}

// MarketCloseTime returns the end of the regular Tesouro Direto window (18:00 BRT).
func MarketCloseTime(date time.Time) time.Time {
	d := date.In(BRT)
	return time.Date(d.Year(), d.Month(), d.Day(), 18, 0, 0, 0, BRT)
}

// IsMarketOpenAt checks if Tesouro Direto quotes are live at the given time.
func IsMarketOpenAt(t time.Time) bool {
	t = t.In(BRT)
	if !IsBusinessDay(t) {
		return false
	}
	return !t.Before(MarketOpenTime(t)) && t.Before(MarketCloseTime(t))
}

// IsBusinessDay checks if the given date is neither a weekend nor a national holiday.
func IsBusinessDay(t time.Time) bool {
	t = t.In(BRT)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !IsHoliday(t)
}

// PrevBusinessDay returns the last business day strictly before from.
func PrevBusinessDay(from time.Time) time.Time {
	prev := from.In(BRT).AddDate(0, 0, -1)
	for !IsBusinessDay(prev) {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}

// IsHoliday checks if the given date is a national (ANBIMA) holiday.
// This list should be updated annually.
func IsHoliday(t time.Time) bool {
	_, ok := holidays2026[t.In(BRT).Format(time.DateOnly)]
	return ok
}

// National holidays for 2026 (update annually).
var holidays2026 = map[string]string{
	"2026-01-01": "Confraternização Universal",
	"2026-02-16": "Carnaval",
	"2026-02-17": "Carnaval",
	"2026-04-03": "Paixão de Cristo",
	"2026-04-21": "Tiradentes",
	"2026-05-01": "Dia do Trabalho",
	"2026-06-04": "Corpus Christi",
	"2026-09-07": "Independência do Brasil",
	"2026-10-12": "Nossa Senhora Aparecida",
	"2026-11-02": "Finados",
	"2026-11-15": "Proclamação da República",
	"2026-11-20": "Dia Nacional de Zumbi e da Consciência Negra",
	"2026-12-25": "Natal",
}

// MarketStatus returns the Tesouro Direto status string at t.
func MarketStatus(t time.Time) string {
	t = t.In(BRT)

	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return "CLOSED (Weekend)"
	}
	if name, ok := holidays2026[t.Format(time.DateOnly)]; ok {
		return "CLOSED (" + name + ")"
	}

	switch {
	case t.Before(MarketOpenTime(t)):
		return "PRE-MARKET"
	case t.Before(MarketCloseTime(t)):
		return "OPEN"
	default:
		return "CLOSED"
	}
}
