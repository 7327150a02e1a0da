package model

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Family is an oscillator family keyed by label ("48", "48_72"). Each entry is
// either a numeric array or an object of named component arrays.
type Family map[string]json.RawMessage

// UnmarshalJSON accepts any JSON value; anything but an object yields an
// empty family so one bad field never rejects the whole snapshot.
func (f *Family) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		*f = Family{}
		return nil
	}
	*f = Family(m)
	return nil
}

// Series decodes one sub-series. component is ignored for array entries and
// selects the named array for object entries. An absent key or a value of
// the wrong shape returns ok=false.
func (f Family) Series(key, component string) (Values, bool) {
	raw, ok := f[key]
	if !ok || len(raw) == 0 {
		return nil, false
	}
	switch firstByte(raw) {
	case '[':
		var v Values
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, false
		}
		return v, true
	case '{':
		if component == "" {
			return nil, false
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, false
		}
		sub, ok := obj[component]
		if !ok || firstByte(sub) != '[' {
			return nil, false
		}
		var v Values
		if err := json.Unmarshal(sub, &v); err != nil {
			return nil, false
		}
		return v, true
	}
	return nil, false
}

// SetSeries stores a single-array entry.
func (f Family) SetSeries(key string, v Values) {
	b, _ := json.Marshal(v)
	f[key] = b
}

// SetComponents stores an object entry of named arrays.
func (f Family) SetComponents(key string, components map[string]Values) {
	b, _ := json.Marshal(components)
	f[key] = b
}

// Keys returns the family labels in numeric ascending order.
func (f Family) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// SortKeys orders labels numerically: "48" < "72" < "168", "48_72" < "72_168".
// Labels are compared as tuples of "_"-separated integers; labels that are not
// numeric sort after all numeric ones, lexically.
func SortKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, aok := numericKey(keys[i])
		b, bok := numericKey(keys[j])
		switch {
		case aok && bok:
			for n := 0; n < len(a) && n < len(b); n++ {
				if a[n] != b[n] {
					return a[n] < b[n]
				}
			}
			if len(a) != len(b) {
				return len(a) < len(b)
			}
			return keys[i] < keys[j]
		case aok != bok:
			return aok
		default:
			return keys[i] < keys[j]
		}
	})
}

func numericKey(k string) ([]int64, bool) {
	if k == "" {
		return nil, false
	}
	parts := strings.Split(k, "_")
	out := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func firstByte(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c
	}
	return 0
}
