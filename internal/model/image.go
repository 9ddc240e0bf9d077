package model

import "image"

// DecodedImage is a decoded raster together with its intrinsic attributes.
// It belongs to the pipeline invocation that produced it.
type DecodedImage struct {
	Image  image.Image
	Width  int
	Height int
	Format string         // "jpeg", "png", "gif", ...
	Exif   map[string]any // keyed by lowercase hex tag id, nil when absent
	Size   int            // size of the source bytes
}

// FetchKind tags the variant of a FetchOutcome.
type FetchKind int

const (
	FetchSuccess FetchKind = iota
	FetchRateLimited
	FetchHTTPError
	FetchTransportError
)

// TransportKind classifies network failures.
type TransportKind string

const (
	TransportDisconnected TransportKind = "disconnected"
	TransportTimeout      TransportKind = "timeout"
	TransportConnection   TransportKind = "connection"
)

// FetchOutcome is the result of a rate-limited fetch.
type FetchOutcome struct {
	Kind      FetchKind
	Body      []byte
	Status    int
	Transport TransportKind
}

// Success builds a successful outcome.
func Success(body []byte, status int) FetchOutcome {
	return FetchOutcome{Kind: FetchSuccess, Body: body, Status: status}
}

// RateLimited builds an outcome for a request that never got a token.
func RateLimited() FetchOutcome {
	return FetchOutcome{Kind: FetchRateLimited}
}

// HTTPError builds an outcome for a response with status >= 400.
func HTTPError(status int) FetchOutcome {
	return FetchOutcome{Kind: FetchHTTPError, Status: status}
}

// TransportError builds an outcome for a failed round trip.
func TransportError(kind TransportKind) FetchOutcome {
	return FetchOutcome{Kind: FetchTransportError, Transport: kind}
}
