package models

import "time"

// WeatherSnapshot captures the conditions at a race location at one instant.
// Stored on the race as a JSON document; refreshed only by an explicit
// refresh operation, never inline in lifecycle transitions.
type WeatherSnapshot struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	Condition   string    `json:"condition"`
	Forecast    bool      `json:"forecast"`
	FetchedAt   time.Time `json:"fetched_at"`
}
