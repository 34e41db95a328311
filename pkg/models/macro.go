package models

import "time"

// SeriesPoint is one observation of a BCB SGS time series.
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Expectation is the Focus survey median for one indicator and reference year,
// as collected on Date.
type Expectation struct {
	Date      time.Time `json:"date"`
	Indicator string    `json:"indicator"` // "IPCA", "Selic", "PIB Total", "Câmbio"
	Year      int       `json:"year"`
	Median    float64   `json:"median"`
}

// NewsArticle is a headline from a monitored feed.
type NewsArticle struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Summary     string    `json:"summary,omitempty"`
}
