// Conversions between Struct messages and index types
package server

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/spanindex/pkg/document"
	"github.com/nainya/spanindex/pkg/query"
	"github.com/nainya/spanindex/pkg/tagger"
	"github.com/nainya/spanindex/pkg/tagspan"
	"github.com/nainya/spanindex/pkg/version"
)

// errField marks request decoding problems; they map to InvalidArgument
type errField struct {
	field  string
	reason string
}

func (e *errField) Error() string {
	return fmt.Sprintf("%s %s", e.field, e.reason)
}

func requireString(req *structpb.Struct, field string) (string, error) {
	v, ok := req.GetFields()[field]
	if !ok {
		return "", &errField{field, "is required"}
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok || s.StringValue == "" {
		return "", &errField{field, "must be a non-empty string"}
	}
	return s.StringValue, nil
}

func optionalString(req *structpb.Struct, field string) (string, error) {
	v, ok := req.GetFields()[field]
	if !ok {
		return "", nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", &errField{field, "must be a string"}
	}
	return s.StringValue, nil
}

func toInt(v *structpb.Value, field string) (int, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, &errField{field, "must be a number"}
	}
	f := n.NumberValue
	if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, &errField{field, "must be a non-negative integer"}
	}
	return int(f), nil
}

func requireInt(req *structpb.Struct, field string) (int, error) {
	v, ok := req.GetFields()[field]
	if !ok {
		return 0, &errField{field, "is required"}
	}
	return toInt(v, field)
}

func optionalInt(req *structpb.Struct, field string, def int) (int, error) {
	v, ok := req.GetFields()[field]
	if !ok {
		return def, nil
	}
	return toInt(v, field)
}

// requestVersion reads "version", defaulting to current
func requestVersion(req *structpb.Struct, current version.Version) (version.Version, error) {
	v, err := optionalInt(req, "version", 0)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return current, nil
	}
	return version.Version(v), nil
}

func listOfStructs(req *structpb.Struct, field string) ([]*structpb.Struct, error) {
	v, ok := req.GetFields()[field]
	if !ok {
		return nil, &errField{field, "is required"}
	}
	list, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, &errField{field, "must be a list"}
	}
	out := make([]*structpb.Struct, 0, len(list.ListValue.GetValues()))
	for i, item := range list.ListValue.GetValues() {
		s, ok := item.GetKind().(*structpb.Value_StructValue)
		if !ok {
			return nil, &errField{fmt.Sprintf("%s[%d]", field, i), "must be an object"}
		}
		out = append(out, s.StructValue)
	}
	return out, nil
}

func decodeEdits(req *structpb.Struct) ([]document.TextEdit, error) {
	items, err := listOfStructs(req, "edits")
	if err != nil {
		return nil, err
	}
	edits := make([]document.TextEdit, len(items))
	for i, item := range items {
		start, err := requireInt(item, "start")
		if err != nil {
			return nil, err
		}
		oldLength, err := optionalInt(item, "old_length", 0)
		if err != nil {
			return nil, err
		}
		text, err := optionalString(item, "text")
		if err != nil {
			return nil, err
		}
		edits[i] = document.TextEdit{Start: start, OldLength: oldLength, Text: text}
	}
	return edits, nil
}

// decodeRanges reads "ranges" and normalizes them so batch queries always
// receive a valid set
func decodeRanges(req *structpb.Struct) (query.Set, error) {
	items, err := listOfStructs(req, "ranges")
	if err != nil {
		return nil, err
	}
	ranges := make([]query.Range, len(items))
	for i, item := range items {
		start, err := requireInt(item, "start")
		if err != nil {
			return nil, err
		}
		length, err := requireInt(item, "length")
		if err != nil {
			return nil, err
		}
		ranges[i] = query.Range{Start: start, Length: length}
	}
	return query.Normalize(ranges), nil
}

func encodeResults(results []tagspan.Result[tagger.Tag]) []interface{} {
	out := make([]interface{}, len(results))
	for i, r := range results {
		out[i] = map[string]interface{}{
			"start":  r.Span.Start,
			"length": r.Span.Length,
			"rule":   r.Tag.Rule,
			"kind":   r.Tag.Kind,
		}
	}
	return out
}

func newResponse(fields map[string]interface{}) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return resp, nil
}
