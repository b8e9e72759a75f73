package protocol

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/mcpgate/mcpgate/pkg/wire"
)

const spotlightIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const spotlightIDLength = 8

// spotlightDelimitedFields names the object fields a recursive spotlight
// walk wraps when found carrying a string value.
var spotlightDelimitedFields = map[string]struct{}{
	"text":    {},
	"message": {},
	"content": {},
	"summary": {},
}

// Spotlight wraps s in randomized delimiters so a downstream LLM cannot
// mistake tool output for an instruction: the closing delimiter carries an
// id the content itself cannot have predicted, so embedded text claiming
// to be the terminator does not actually close the block.
func Spotlight(s string) string {
	id := randomSpotlightID()
	return "<<<DATA_START:" + id + ">>>\n" + s + "\n<<<DATA_END:" + id + ">>>"
}

func randomSpotlightID() string {
	out := make([]byte, spotlightIDLength)
	max := big.NewInt(int64(len(spotlightIDAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing is unrecoverable; fall back to a fixed
			// but still non-empty delimiter rather than panicking mid-response.
			out[i] = spotlightIDAlphabet[0]
			continue
		}
		out[i] = spotlightIDAlphabet[n.Int64()]
	}
	return string(out)
}

// Redact replaces a field's string value outright.
const RedactedPlaceholder = "[REDACTED]"

// spotlightLegacyResult rewrites only result.content[*].text string fields, the
// 2024 adapter's field-traversal policy.
func spotlightLegacyResult(result map[string]interface{}) {
	content, ok := result["content"].([]interface{})
	if !ok {
		return
	}
	for _, item := range content {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if text, ok := obj["text"].(string); ok {
			obj["text"] = Spotlight(text)
		}
	}
}

// spotlightModernResult additionally recurses result.structuredContent,
// wrapping any string found at a named field, the 2025 adapter's policy.
func spotlightModernResult(result map[string]interface{}) {
	spotlightLegacyResult(result)
	if structured, ok := result["structuredContent"]; ok {
		recursiveSpotlight(structured)
	}
}

func recursiveSpotlight(v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			if _, named := spotlightDelimitedFields[k]; named {
				if s, ok := child.(string); ok {
					val[k] = Spotlight(s)
					continue
				}
			}
			recursiveSpotlight(child)
		}
	case []interface{}:
		for _, child := range val {
			recursiveSpotlight(child)
		}
	}
}

// redactResult replaces the value found at each of jsonPaths with the fixed
// redaction placeholder. A path is a dotted sequence of object keys; a
// segment suffixed with "[*]" names an array field and applies the
// remaining segments to every element. A path naming a field absent from
// result is silently skipped. Unlike Spotlight, Redact has no built-in
// notion of which fields to touch — it only ever replaces what a rule's
// json_paths names.
func redactResult(result map[string]interface{}, jsonPaths []string) {
	for _, path := range jsonPaths {
		redactPath(result, strings.Split(path, "."))
	}
}

// redactPath walks node by segments, replacing the final target with
// RedactedPlaceholder. node is expected to be a map[string]interface{} (or,
// mid-walk through a "[*]" segment, an element of a []interface{}).
func redactPath(node interface{}, segments []string) {
	if len(segments) == 0 {
		return
	}
	obj, ok := node.(map[string]interface{})
	if !ok {
		return
	}
	seg := segments[0]
	rest := segments[1:]
	name, wildcard := strings.CutSuffix(seg, "[*]")
	child, has := obj[name]
	if !has {
		return
	}
	if wildcard {
		arr, ok := child.([]interface{})
		if !ok {
			return
		}
		for i, item := range arr {
			if len(rest) == 0 {
				arr[i] = RedactedPlaceholder
				continue
			}
			redactPath(item, rest)
		}
		return
	}
	if len(rest) == 0 {
		obj[name] = RedactedPlaceholder
		return
	}
	redactPath(child, rest)
}

// applyOutputTransforms mutates result in place per the given transforms,
// using the version-specific traversal policy selected by modern.
func applyOutputTransforms(result map[string]interface{}, transforms []OutputTransform, modern bool) {
	for _, t := range transforms {
		switch t.Kind {
		case TransformSpotlight:
			if modern {
				spotlightModernResult(result)
			} else {
				spotlightLegacyResult(result)
			}
		case TransformRedact:
			redactResult(result, t.JSONPaths)
		}
	}
}

// decodeResult unmarshals a response's raw result into a generic map for
// transformation, returning (nil, false) if it is not a JSON object.
func decodeResult(raw json.RawMessage) (map[string]interface{}, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

// ApplyOutputTransforms decodes resp's result, applies the given output
// transforms using either the legacy (content[*].text only) or modern
// (also structuredContent) field traversal, and re-encodes it in place.
// A response with no result, or a non-object result, is left untouched.
func ApplyOutputTransforms(resp *wire.Response, transforms []OutputTransform, modern bool) {
	if resp == nil || len(resp.Result) == 0 {
		return
	}
	result, ok := decodeResult(resp.Result)
	if !ok {
		return
	}
	applyOutputTransforms(result, transforms, modern)
	if encoded, err := json.Marshal(result); err == nil {
		resp.Result = encoded
	}
}
