// ABOUTME: JSON schemas for record documents exchanged over HTTP
// ABOUTME: Validates user input on the local API and pushed records on the remote side

package store

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const inputSchemaURL = "https://snipsync.local/schema/record-input.json"
const pushSchemaURL = "https://snipsync.local/schema/record-push.json"

// inputSchema describes what a client may send when creating or editing
// a record. Timestamps and status are owned by the store.
const inputSchema = `{
	"type": "object",
	"properties": {
		"id":      {"type": "string", "minLength": 1, "maxLength": 128},
		"content": {"type": "string", "maxLength": 1048576},
		"tag":     {"type": "string", "maxLength": 64}
	},
	"required": ["content"]
}`

// pushSchema describes a record as it arrives at the remote.
const pushSchema = `{
	"type": "object",
	"properties": {
		"id":         {"type": "string", "minLength": 1},
		"content":    {"type": "string"},
		"tag":        {"type": "string"},
		"createdAt":  {"type": "string", "format": "date-time"},
		"modifiedAt": {"type": "string", "format": "date-time"},
		"syncStatus": {"enum": ["pending", "synced", "error"]}
	},
	"required": ["id", "content", "createdAt", "modifiedAt"]
}`

var (
	inputValidator = mustCompile(inputSchemaURL, inputSchema)
	pushValidator  = mustCompile(pushSchemaURL, pushSchema)
)

func mustCompile(url, src string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		panic("store: parsing schema " + url + ": " + err.Error())
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		panic("store: adding schema " + url + ": " + err.Error())
	}
	return c.MustCompile(url)
}

// ValidateInput checks a client-supplied record document.
func ValidateInput(data []byte) error {
	return validate(inputValidator, data)
}

// ValidatePush checks a record document as pushed to the remote.
func ValidatePush(data []byte) error {
	return validate(pushValidator, data)
}

func validate(sch *jsonschema.Schema, data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	return nil
}
