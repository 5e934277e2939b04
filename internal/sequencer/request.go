package sequencer

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/smallbiznis/tracechain/internal/errs"
	"github.com/smallbiznis/tracechain/internal/stage"
)

const maxLocationLength = 200

// RecordRequest records one stage transition for a single product.
type RecordRequest struct {
	ProductID   string         `json:"-"`
	Stage       string         `json:"stage"`
	Location    string         `json:"location"`
	Latitude    *float64       `json:"latitude,omitempty"`
	Longitude   *float64       `json:"longitude,omitempty"`
	DocumentRef *string        `json:"document_ref,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// BatchRequest records the same stage transition for every product of a batch.
type BatchRequest struct {
	BatchID     string         `json:"-"`
	Stage       string         `json:"stage"`
	Location    string         `json:"location"`
	Latitude    *float64       `json:"latitude,omitempty"`
	Longitude   *float64       `json:"longitude,omitempty"`
	DocumentRef *string        `json:"document_ref,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// BatchResult reports how far a batch submission got. Error is nil only when
// every eligible product was updated.
type BatchResult struct {
	Succeeded     int    `json:"succeeded"`
	Total         int    `json:"total"`
	Skipped       int    `json:"skipped"`
	Attempted     int    `json:"attempted"`
	FirstSequence uint64 `json:"first_sequence,omitempty"`
	Error         error  `json:"-"`
}

// Failed counts eligible products that did not receive the update, whether
// their submission failed or was never attempted.
func (r BatchResult) Failed() int {
	failed := r.Total - r.Skipped - r.Succeeded
	if failed < 0 {
		return 0
	}
	return failed
}

// Message renders the outcome for display.
func (r BatchResult) Message() string {
	var msg string
	if r.Error == nil {
		msg = fmt.Sprintf("Update successfully added to %d of %d products.", r.Succeeded, r.Total)
	} else {
		msg = fmt.Sprintf("%d of %d products updated, %d failed.", r.Succeeded, r.Total, r.Failed())
	}
	if r.Skipped > 0 {
		msg += fmt.Sprintf(" %d skipped: not authorized.", r.Skipped)
	}
	return msg
}

type stepInput struct {
	code        stage.Code
	location    string
	latitude    *float64
	longitude   *float64
	documentRef *string
	metadata    map[string]any
}

func (r RecordRequest) input(catalog *stage.Catalog) (stepInput, error) {
	return parseInput(catalog, r.Stage, r.Location, r.Latitude, r.Longitude, r.DocumentRef, r.Metadata)
}

func (r BatchRequest) input(catalog *stage.Catalog) (stepInput, error) {
	return parseInput(catalog, r.Stage, r.Location, r.Latitude, r.Longitude, r.DocumentRef, r.Metadata)
}

func parseInput(catalog *stage.Catalog, rawStage, rawLocation string, lat, lng *float64, docRef *string, metadata map[string]any) (stepInput, error) {
	code, err := catalog.Parse(rawStage)
	if err != nil {
		return stepInput{}, err
	}

	location := strings.TrimSpace(rawLocation)
	if location == "" {
		return stepInput{}, errs.Invalid("location", "required")
	}
	if utf8.RuneCountInString(location) > maxLocationLength {
		return stepInput{}, errs.Invalid("location", "too_long")
	}

	if (lat == nil) != (lng == nil) {
		return stepInput{}, errs.Invalid("coordinates", "incomplete")
	}
	if lat != nil && (!finite(*lat) || *lat < -90 || *lat > 90) {
		return stepInput{}, errs.Invalid("latitude", "out_of_range")
	}
	if lng != nil && (!finite(*lng) || *lng < -180 || *lng > 180) {
		return stepInput{}, errs.Invalid("longitude", "out_of_range")
	}

	var ref *string
	if docRef != nil {
		if trimmed := strings.TrimSpace(*docRef); trimmed != "" {
			ref = &trimmed
		}
	}

	return stepInput{
		code:        code,
		location:    location,
		latitude:    lat,
		longitude:   lng,
		documentRef: ref,
		metadata:    metadata,
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
