package preferences

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Kind identifies which type of data a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a single piece of preference data. It holds exactly one of a
// string, number, boolean, ordered list of Values, map of Values, or null.
// The zero value is null.
//
// Numbers keep the literal they were decoded from, so a Value round trips
// through JSON without losing precision.
type Value struct {
	kind Kind
	str  string // the string, or the number's literal
	b    bool
	list []Value
	m    map[string]Value
}

// Null returns a null Value.
func Null() Value {
	return Value{}
}

// String returns a Value holding `s`.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number returns a Value holding the number `n`. `n` must be a valid JSON
// number literal, or the Value will fail to marshal.
func Number(n json.Number) Value {
	return Value{kind: KindNumber, str: n.String()}
}

// Int returns a Value holding `i`.
func Int(i int64) Value {
	return Value{kind: KindNumber, str: strconv.FormatInt(i, 10)}
}

// Float returns a Value holding `f`.
func Float(f float64) Value {
	return Value{kind: KindNumber, str: strconv.FormatFloat(f, 'g', -1, 64)}
}

// Bool returns a Value holding `b`.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// List returns a Value holding the ordered `vals`.
func List(vals ...Value) Value {
	list := make([]Value, len(vals))
	copy(list, vals)
	return Value{kind: KindList, list: list}
}

// Map returns a Value holding a copy of `m`.
func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

// Kind returns the type of data `v` holds.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull returns true if `v` is null.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// AsString returns the string `v` holds, and false if `v` isn't a string.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the number `v` holds, and false if `v` isn't a number.
func (v Value) AsNumber() (json.Number, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return json.Number(v.str), true
}

// AsBool returns the boolean `v` holds, and false if `v` isn't a boolean.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsList returns a copy of the list `v` holds, and false if `v` isn't a
// list.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	list := make([]Value, len(v.list))
	copy(list, v.list)
	return list, true
}

// AsMap returns a copy of the map `v` holds, and false if `v` isn't a map.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	m := make(map[string]Value, len(v.m))
	for k, val := range v.m {
		m[k] = val
	}
	return m, true
}

// Equal reports whether `v` and `other` hold the same data. Numbers are
// compared by their literal, so 1 and 1.0 are not equal.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString, KindNumber:
		return v.str == other.str
	case KindBool:
		return v.b == other.b
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, val := range v.m {
			o, ok := other.m[k]
			if !ok || !val.Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

// clone returns a deep copy of `v`, so the copy's lists and maps can be
// modified without changing `v`.
func (v Value) clone() Value {
	switch v.kind {
	case KindList:
		list := make([]Value, len(v.list))
		for i, val := range v.list {
			list[i] = val.clone()
		}
		return Value{kind: KindList, list: list}
	case KindMap:
		m := make(map[string]Value, len(v.m))
		for k, val := range v.m {
			m[k] = val.clone()
		}
		return Value{kind: KindMap, m: m}
	}
	return v
}

// validNumber reports whether `s` is a JSON number literal. json.Valid
// alone would also accept strings, arrays, and the other JSON values.
func validNumber(s string) bool {
	if !json.Valid([]byte(s)) {
		return false
	}
	// out of range is still a valid literal
	_, err := strconv.ParseFloat(s, 64)
	return err == nil || errors.Is(err, strconv.ErrRange)
}

// MarshalJSON encodes `v` as standard JSON. Map keys are sorted, so equal
// Values always encode to the same bytes.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if !validNumber(v.str) {
			return nil, fmt.Errorf("invalid number literal %q", v.str)
		}
		return []byte(v.str), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.m)
	}
	return nil, fmt.Errorf("unknown value kind %s", v.kind)
}

// UnmarshalJSON decodes any JSON document into `v`.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	val, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// FromInterface converts the output of decoding JSON into an interface{},
// or a Go literal built from the same types, into a Value.
func FromInterface(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t.clone(), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Float(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case []interface{}:
		list := make([]Value, 0, len(t))
		for _, item := range t {
			val, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			list = append(list, val)
		}
		return Value{kind: KindList, list: list}, nil
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			val, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = val
		}
		return Value{kind: KindMap, m: m}, nil
	}
	return Value{}, fmt.Errorf("unsupported preference value type %T", raw)
}
