package models

import (
	"strings"
	"time"
)

const (
	snapshotKeyPrefix = "quote:"
	channelPrefix     = "quotes."
)

// Quote is a point-in-time snapshot for one symbol. A fresh value is built on every fetch.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Open          float64   `json:"open"`
	PreviousClose float64   `json:"previous_close"`
	Volume        int64     `json:"volume"`
	MarketCap     *float64  `json:"market_cap"`
	Timestamp     time.Time `json:"timestamp"`
}

// Series is a daily close/volume history. Slices are index aligned.
type Series struct {
	Dates   []string  `json:"dates"`
	Prices  []float64 `json:"prices"`
	Volumes []int64   `json:"volumes"`
}

type SearchResult struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// EmptySeries encodes as three empty JSON arrays rather than nulls.
func EmptySeries() Series {
	return Series{Dates: []string{}, Prices: []float64{}, Volumes: []int64{}}
}

func (s Series) Len() int { return len(s.Dates) }

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// SnapshotKey is the Redis key holding the latest published quote for symbol.
func SnapshotKey(symbol string) string { return snapshotKeyPrefix + symbol }

// ChannelName is the Redis pub/sub channel quotes for symbol are published on.
func ChannelName(symbol string) string { return channelPrefix + symbol }
