package model

// Event is a metadata or control message destined for the broker.
type Event interface {
	GetIdentifier() string
}

// QualityUpdate carries the dimensions and size of a crawled image.
type QualityUpdate struct {
	Height             int    `json:"height"`
	Width              int    `json:"width"`
	Identifier         string `json:"identifier"`
	Filesize           int    `json:"filesize"`
	CompressionQuality *int   `json:"compressionQuality"`
}

// ExifUpdate carries the EXIF tags of a crawled image.
type ExifUpdate struct {
	Identifier string         `json:"identifier"`
	Exif       map[string]any `json:"exif"`
}

// RetryNotice asks for a task to be crawled again.
type RetryNotice struct {
	Identifier string `json:"identifier"`
	Source     string `json:"source"`
	URL        string `json:"url"`
	Attempts   int    `json:"attempts"`
}

// LinkRotNotice marks a known URL that now resolves to not-found.
type LinkRotNotice struct {
	Identifier string `json:"identifier"`
	Timestamp  string `json:"timestamp"`
}

func (e QualityUpdate) GetIdentifier() string { return e.Identifier }
func (e ExifUpdate) GetIdentifier() string    { return e.Identifier }
func (e RetryNotice) GetIdentifier() string   { return e.Identifier }
func (e LinkRotNotice) GetIdentifier() string { return e.Identifier }
