package report

import (
	"encoding/json"
	"fmt"
)

// JSON renders the stable top-level JSON object of spec §6.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: marshaling JSON: %w", err)
	}
	return data, nil
}

// LoadBaseline parses a previously-saved JSON report to use as a baseline
// for Generate, rejecting a schema_version mismatch per spec §6: "Baselines
// with mismatched schema_version are rejected with a warning."
func LoadBaseline(data []byte) (*Report, error) {
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("report: parsing baseline: %w", err)
	}
	if rep.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("report: baseline schema_version %d does not match current %d", rep.SchemaVersion, SchemaVersion)
	}
	return &rep, nil
}
