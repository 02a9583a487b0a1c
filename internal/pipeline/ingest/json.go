package ingest

import (
	"encoding/json"

	"gorm.io/datatypes"
)

func jsonColumn(v map[string]any) datatypes.JSON {
	if v == nil {
		v = map[string]any{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}
