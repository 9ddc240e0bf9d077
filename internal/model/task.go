package model

import "encoding/json"

// ImageTask represents a single image to crawl, thumbnail, and persist.
type ImageTask struct {
	URL        string `json:"url"`
	Identifier string `json:"identifier"`
	Source     string `json:"source"`   // logical origin used for rate limits and stats
	Attempts   int    `json:"attempts"` // number of earlier crawl attempts
}

// UnmarshalJSON accepts the legacy "uuid" key as an alias of "identifier".
func (t *ImageTask) UnmarshalJSON(data []byte) error {
	type plain ImageTask

	var aux struct {
		plain
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*t = ImageTask(aux.plain)
	if t.Identifier == "" {
		t.Identifier = aux.UUID
	}

	return nil
}
