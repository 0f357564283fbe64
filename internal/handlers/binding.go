package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/plantops/valve-ledger-api/internal/services"
)

// BindNestedOrFlat binds {"key": {...}} or a flat {...} body into obj and
// runs the binding validator on the result.
func BindNestedOrFlat(c *gin.Context, key string, obj interface{}) error {
	bodyBytes, err := readBody(c)
	if err != nil {
		return err
	}

	var nestedMap map[string]json.RawMessage
	if err := json.Unmarshal(bodyBytes, &nestedMap); err == nil {
		if val, ok := nestedMap[key]; ok {
			if err := json.Unmarshal(val, obj); err != nil {
				return err
			}
			return binding.Validator.ValidateStruct(obj)
		}
	}

	if err := json.Unmarshal(bodyBytes, obj); err != nil {
		return err
	}
	return binding.Validator.ValidateStruct(obj)
}

func readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, errors.New("empty body")
	}
	bodyBytes, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	return bodyBytes, err
}

// reserved keys of a valve payload that are never attribute values
var valveEnvelopeKeys = map[string]bool{
	"fields":      true,
	"attachments": true,
	"ledger_id":   true,
	"submit":      true,
	"id":          true,
	"status":      true,
}

// valvePayload is a decoded valve body; ID is only used by the draft endpoint
type valvePayload struct {
	ID    uint
	Input services.ValveInput
}

// bindValveInput accepts {"fields": {...}, "attachments": [...], "submit": true}
// or the flat form the forms post, {"tag": "FV-1", "名称": "...", "attachments": [...]}.
// Flat numbers and booleans are kept as their JSON text.
func bindValveInput(c *gin.Context) (valvePayload, error) {
	var p valvePayload
	bodyBytes, err := readBody(c)
	if err != nil {
		return p, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(bodyBytes, &raw); err != nil {
		return p, err
	}
	if v, ok := raw["id"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &p.ID); err != nil {
			return p, err
		}
	}
	if _, nested := raw["fields"]; nested {
		err := json.Unmarshal(bodyBytes, &p.Input)
		return p, err
	}

	in := &p.Input

	if v, ok := raw["attachments"]; ok {
		if err := json.Unmarshal(v, &in.Attachments); err != nil {
			return p, err
		}
	}
	if v, ok := raw["ledger_id"]; ok {
		if err := json.Unmarshal(v, &in.LedgerID); err != nil {
			return p, err
		}
	}
	if v, ok := raw["submit"]; ok {
		if err := json.Unmarshal(v, &in.Submit); err != nil {
			return p, err
		}
	}

	in.Fields = make(map[string]string, len(raw))
	for key, value := range raw {
		if valveEnvelopeKeys[key] {
			continue
		}
		in.Fields[key] = scalarText(value)
	}
	return p, nil
}

func scalarText(value json.RawMessage) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(value, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(value, &b); err == nil {
		return strconv.FormatBool(b)
	}
	// null and nested values clear the field
	return ""
}
