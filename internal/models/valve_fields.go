package models

import (
	"reflect"
	"strings"
	"sync"
)

// ValveField describes one descriptive attribute of a Valve.
// Key is the JSON name and database column, Label the Chinese column header
// used by spreadsheets and PDF output.
type ValveField struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Group      string `json:"group"`
	Filterable bool   `json:"filterable"`
	index      int
}

var (
	valveFieldsOnce  sync.Once
	valveFields      []ValveField
	valveFieldLookup map[string]ValveField
)

func loadValveFields() {
	t := reflect.TypeOf(Valve{})
	valveFieldLookup = make(map[string]ValveField)
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		label := sf.Tag.Get("label")
		if label == "" || sf.Type.Kind() != reflect.String {
			continue
		}
		key := strings.Split(sf.Tag.Get("json"), ",")[0]
		f := ValveField{
			Key:        key,
			Label:      label,
			Group:      sf.Tag.Get("group"),
			Filterable: sf.Tag.Get("filter") == "true",
			index:      i,
		}
		valveFields = append(valveFields, f)
		valveFieldLookup[key] = f
		valveFieldLookup[label] = f
	}
}

// ValveFields returns the descriptive attributes in declaration order
func ValveFields() []ValveField {
	valveFieldsOnce.Do(loadValveFields)
	return valveFields
}

// LookupValveField finds a field by JSON key or Chinese label
func LookupValveField(name string) (ValveField, bool) {
	valveFieldsOnce.Do(loadValveFields)
	f, ok := valveFieldLookup[strings.TrimSpace(name)]
	return f, ok
}

// FilterableValveFields returns the fields offered as list filters
func FilterableValveFields() []ValveField {
	var out []ValveField
	for _, f := range ValveFields() {
		if f.Filterable {
			out = append(out, f)
		}
	}
	return out
}

// FieldValue returns the value of a descriptive attribute
func (v *Valve) FieldValue(name string) string {
	f, ok := LookupValveField(name)
	if !ok {
		return ""
	}
	return reflect.ValueOf(v).Elem().Field(f.index).String()
}

// SetField assigns a descriptive attribute; unknown names are ignored
func (v *Valve) SetField(name, value string) bool {
	f, ok := LookupValveField(name)
	if !ok {
		return false
	}
	reflect.ValueOf(v).Elem().Field(f.index).SetString(strings.TrimSpace(value))
	return true
}

// ApplyFields copies every known attribute from data and returns the unknown keys
func (v *Valve) ApplyFields(data map[string]string) []string {
	var unknown []string
	for k, val := range data {
		if !v.SetField(k, val) {
			unknown = append(unknown, k)
		}
	}
	return unknown
}

// FieldMap returns all descriptive attributes keyed by JSON name
func (v *Valve) FieldMap() map[string]string {
	rv := reflect.ValueOf(v).Elem()
	out := make(map[string]string, len(ValveFields()))
	for _, f := range ValveFields() {
		out[f.Key] = rv.Field(f.index).String()
	}
	return out
}
