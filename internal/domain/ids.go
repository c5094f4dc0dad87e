package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FlexID is an identifier that upstream systems render as either a JSON
// string or a JSON number.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be string or number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

// String returns the identifier text.
func (f FlexID) String() string {
	return string(f)
}
