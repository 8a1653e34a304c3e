package scrape

import (
	"encoding/json"
	"fmt"
)

// recordEnvelope is the wrapped payload shape: an object with the records
// under a "data" key, optionally alongside metadata.
type recordEnvelope struct {
	Data []Record `json:"data"`
}

// DecodeRecords parses a JSON payload into records. Two shapes are
// accepted transparently: a plain array of records, or an object with a
// "data" key holding that array.
func DecodeRecords(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var envelope recordEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("payload is neither a record array nor a data envelope: %w", err)
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("payload object has no data key")
	}
	return envelope.Data, nil
}
