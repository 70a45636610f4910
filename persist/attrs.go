package persist

import (
	"encoding/json"

	"github.com/go-spatial/geographer/geoerrors"
)

// AttrsDoc is the wire shape of attrs.json: dataset-level
// metadata that rides alongside the two tables and the graph. Extra
// carries any field this package doesn't recognize so a save/load
// cycle never drops data a newer writer produced.
type AttrsDoc struct {
	CRSEPSG         uint64                     `json:"crs_epsg"`
	TaskClasses     []string                   `json:"task_classes,omitempty"`
	BackgroundClass string                     `json:"background_class,omitempty"`
	Extra           map[string]json.RawMessage `json:"-"`
}

// EncodeAttrs serializes a.
func EncodeAttrs(a AttrsDoc) ([]byte, error) {
	raw := map[string]interface{}{
		"crs_epsg": a.CRSEPSG,
	}
	if len(a.TaskClasses) > 0 {
		raw["task_classes"] = a.TaskClasses
	}
	if a.BackgroundClass != "" {
		raw["background_class"] = a.BackgroundClass
	}
	for k, v := range a.Extra {
		if _, known := raw[k]; known {
			continue
		}
		var decoded interface{}
		if err := json.Unmarshal(v, &decoded); err == nil {
			raw[k] = decoded
		}
	}
	return json.MarshalIndent(raw, "", "  ")
}

// DecodeAttrs parses attrs.json, preserving unrecognized top-level fields in Extra.
func DecodeAttrs(data []byte) (AttrsDoc, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return AttrsDoc{}, geoerrors.NewPersistenceError("attrs.json", "corrupt attrs wire format", err)
	}

	var a AttrsDoc
	if v, ok := raw["crs_epsg"]; ok {
		if err := json.Unmarshal(v, &a.CRSEPSG); err != nil {
			return AttrsDoc{}, geoerrors.NewPersistenceError("attrs.json", "corrupt crs_epsg field", err)
		}
	}
	if v, ok := raw["task_classes"]; ok {
		if err := json.Unmarshal(v, &a.TaskClasses); err != nil {
			return AttrsDoc{}, geoerrors.NewPersistenceError("attrs.json", "corrupt task_classes field", err)
		}
	}
	if v, ok := raw["background_class"]; ok {
		if err := json.Unmarshal(v, &a.BackgroundClass); err != nil {
			return AttrsDoc{}, geoerrors.NewPersistenceError("attrs.json", "corrupt background_class field", err)
		}
	}

	a.Extra = map[string]json.RawMessage{}
	for k, v := range raw {
		switch k {
		case "crs_epsg", "task_classes", "background_class":
			continue
		}
		a.Extra[k] = v
	}
	return a, nil
}
