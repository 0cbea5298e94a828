package repo

import (
	"pixshop/internal/domain"
	"pixshop/internal/domain/jsoncfg"
)

// decodeStored parses a stored collection. Empty input is an empty list.
func decodeStored(data []byte) ([]domain.StylePreset, error) {
	if len(data) == 0 {
		return []domain.StylePreset{}, nil
	}
	return jsoncfg.DecodePresets(data, nil)
}

func encodeStored(items []domain.StylePreset) ([]byte, error) {
	if items == nil {
		items = []domain.StylePreset{}
	}
	return jsoncfg.EncodePresets(items)
}
