package protocol

import (
	"strings"
	"testing"

	"github.com/mcpgate/mcpgate/pkg/wire"
)

func TestSpotlightWrapsWithMatchingDelimiterIDs(t *testing.T) {
	out := Spotlight("hello")
	if !strings.Contains(out, "hello") {
		t.Fatalf("expected wrapped content to contain original string, got %s", out)
	}
	startIdx := strings.Index(out, "<<<DATA_START:")
	endIdx := strings.Index(out, "<<<DATA_END:")
	if startIdx == -1 || endIdx == -1 {
		t.Fatalf("missing delimiters in %s", out)
	}
	startID := out[startIdx+len("<<<DATA_START:") : strings.Index(out, ">>>")]
	endID := out[endIdx+len("<<<DATA_END:"):]
	endID = strings.TrimSuffix(endID, ">>>")
	if startID != endID {
		t.Fatalf("start id %q does not match end id %q", startID, endID)
	}
	if len(startID) != spotlightIDLength {
		t.Fatalf("expected id length %d, got %d", spotlightIDLength, len(startID))
	}
}

func TestSpotlightIDsVaryAcrossCalls(t *testing.T) {
	a := Spotlight("x")
	b := Spotlight("x")
	if a == b {
		t.Fatal("expected two spotlight calls to differ in delimiter id")
	}
}

func TestApplyOutputTransformsLegacyOnlyTouchesContentText(t *testing.T) {
	resp := &wire.Response{Result: []byte(`{"content":[{"text":"secret"}],"structuredContent":{"text":"also secret"}}`)}
	ApplyOutputTransforms(resp, []OutputTransform{{Kind: TransformSpotlight}}, false)

	if !strings.Contains(string(resp.Result), "DATA_START") {
		t.Fatal("expected content[].text to be spotlighted")
	}
	if !strings.Contains(string(resp.Result), `"also secret"`) {
		t.Fatal("expected structuredContent to remain untouched for the legacy adapter")
	}
	if strings.Count(string(resp.Result), "DATA_START") != 1 {
		t.Fatalf("expected exactly one spotlighted field for legacy traversal, got: %s", resp.Result)
	}
}

func TestApplyOutputTransformsModernRecursesStructuredContent(t *testing.T) {
	resp := &wire.Response{Result: []byte(`{"content":[{"text":"a"}],"structuredContent":{"summary":"b","nested":{"message":"c"}}}`)}
	ApplyOutputTransforms(resp, []OutputTransform{{Kind: TransformSpotlight}}, true)

	if strings.Count(string(resp.Result), "DATA_START") != 3 {
		t.Fatalf("expected 3 spotlighted fields for modern traversal, got: %s", resp.Result)
	}
}

func TestApplyOutputTransformsRedact(t *testing.T) {
	resp := &wire.Response{Result: []byte(`{"content":[{"text":"secret"}]}`)}
	ApplyOutputTransforms(resp, []OutputTransform{{Kind: TransformRedact, JSONPaths: []string{"content[*].text"}}}, false)

	if !strings.Contains(string(resp.Result), RedactedPlaceholder) {
		t.Fatalf("expected redaction placeholder, got %s", resp.Result)
	}
}

func TestApplyOutputTransformsRedactOnlyNamedPaths(t *testing.T) {
	resp := &wire.Response{Result: []byte(`{"summary":"topsecret","other":"untouched"}`)}
	ApplyOutputTransforms(resp, []OutputTransform{{Kind: TransformRedact, JSONPaths: []string{"summary"}}}, false)

	if !strings.Contains(string(resp.Result), `"summary":"`+RedactedPlaceholder+`"`) {
		t.Fatalf("expected summary to be redacted, got %s", resp.Result)
	}
	if !strings.Contains(string(resp.Result), `"other":"untouched"`) {
		t.Fatalf("expected other field to be left untouched, got %s", resp.Result)
	}
}

func TestApplyOutputTransformsRedactEmptyJSONPathsIsNoOp(t *testing.T) {
	original := `{"content":[{"text":"secret"}]}`
	resp := &wire.Response{Result: []byte(original)}
	ApplyOutputTransforms(resp, []OutputTransform{{Kind: TransformRedact}}, false)

	if strings.Contains(string(resp.Result), RedactedPlaceholder) {
		t.Fatalf("expected no redaction without json_paths, got %s", resp.Result)
	}
}
