package models

import "time"

// Episode is a saved podcast episode script.
type Episode struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Topic           string    `json:"topic"`
	Sentences       []string  `json:"sentences"`
	Voice           string    `json:"voice,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

func (e *Episode) Kind() string { return KindEpisode }
func (e *Episode) RecordID() string { return e.ID }
func (e *Episode) SetRecordID(id string) { e.ID = id }
func (e *Episode) Created() time.Time { return e.CreatedAt }
func (e *Episode) SetCreated(ts time.Time) { e.CreatedAt = ts }

// Validate checks required fields.
func (e *Episode) Validate() error {
	if e.Topic == "" {
		return invalid(KindEpisode, "topic is required")
	}
	if len(e.Sentences) == 0 {
		return invalid(KindEpisode, "script has no sentences")
	}
	if e.Title == "" {
		e.Title = e.Topic
	}
	return nil
}
