package httpjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// FlexBool decodes a JSON boolean, or a string such as "Yes", "No",
// "true" or "1". Null and the empty string decode as false.
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = FlexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("expected a boolean")
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES", "Y", "TRUE", "T", "1":
		*b = true
	case "NO", "N", "FALSE", "F", "0", "":
		*b = false
	default:
		return errors.New("expected a boolean")
	}
	return nil
}

// FlexInt decodes a JSON number or a numeric string. Null and the empty
// string decode as zero.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (n *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err == nil {
		*n = FlexInt(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("expected a number")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("expected a number")
	}
	*n = FlexInt(v)
	return nil
}
