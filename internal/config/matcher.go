package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"tickwork/pkg/recurrence"
)

// Matcher is the config form of a recurrence field matcher:
//
//	5                          exact value
//	"5"                        numeric string
//	"*"                        wildcard
//	{"start":0,"end":30,"step":5}  range (defaults 0, 60, 1)
//	[1, 15, {"start":20,"end":25}] union
type Matcher struct {
	M recurrence.Matcher
}

func (m *Matcher) UnmarshalJSON(b []byte) error {
	v, err := decodeMatcher(b)
	if err != nil {
		return err
	}
	m.M = v
	return nil
}

func (m Matcher) MarshalJSON() ([]byte, error) { return json.Marshal(encodeMatcher(m.M)) }

type rangeJSON struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Step  int `json:"step"`
}

func decodeMatcher(b []byte) (recurrence.Matcher, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	switch b[0] {
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(b, &raws); err != nil {
			return nil, err
		}
		u := make(recurrence.Union, 0, len(raws))
		for i, r := range raws {
			e, err := decodeMatcher(r)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			if e == nil {
				return nil, fmt.Errorf("[%d]: wildcard not allowed inside a list", i)
			}
			u = append(u, e)
		}
		return u, nil
	case '{':
		var r rangeJSON
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("range: %w", err)
		}
		return recurrence.NewRange(r.Start, r.End, r.Step), nil
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil, err
		}
		if strings.TrimSpace(s) == "*" {
			return nil, nil
		}
		return recurrence.Text(s), nil
	default:
		var n int
		if err := json.Unmarshal(b, &n); err != nil {
			return nil, fmt.Errorf("matcher must be an integer, string, range or list: %w", err)
		}
		return recurrence.Value(n), nil
	}
}

func encodeMatcher(m recurrence.Matcher) any {
	switch x := m.(type) {
	case nil:
		return "*"
	case recurrence.Value:
		return int(x)
	case recurrence.Text:
		return string(x)
	case recurrence.Range:
		return rangeJSON{Start: x.Start, End: x.End, Step: x.Step}
	case recurrence.Union:
		out := make([]any, 0, len(x))
		for _, e := range x {
			out = append(out, encodeMatcher(e))
		}
		return out
	default:
		return fmt.Sprint(x)
	}
}

// Rule builds the recurrence rule described by c.
func (c *RuleConfig) Rule() *recurrence.Rule {
	r := recurrence.NewRule()
	if c == nil {
		return r
	}
	set := func(dst *recurrence.Matcher, src *Matcher) {
		if src != nil {
			*dst = src.M
		}
	}
	set(&r.Year, c.Year)
	set(&r.Month, c.Month)
	set(&r.Date, c.Date)
	set(&r.DayOfWeek, c.DayOfWeek)
	set(&r.Hour, c.Hour)
	set(&r.Minute, c.Minute)
	set(&r.Second, c.Second)
	return r
}
