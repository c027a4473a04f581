package generation

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"stepweave/internal/model"
)

// schemaFor infers the output contract for T. A fresh schema is returned on
// every call so callers may constrain it in place.
func schemaFor[T any]() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		var zero T
		return nil, fmt.Errorf("infer schema for %T: %w", zero, err)
	}
	return schema, nil
}

// segmentationSchema restricts span labels to the provided step titles.
func segmentationSchema(labels []string) (*jsonschema.Schema, error) {
	schema, err := schemaFor[Segmentation]()
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return schema, nil
	}
	step, err := itemProperty(schema, "segments", "step")
	if err != nil {
		return nil, err
	}
	step.Enum = enumValues(labels)
	return schema, nil
}

// diffSchema restricts candidate aspects and relations to their closed sets.
func diffSchema() (*jsonschema.Schema, error) {
	schema, err := schemaFor[Diff]()
	if err != nil {
		return nil, err
	}
	aspects := make([]string, 0, len(model.Aspects()))
	for _, aspect := range model.Aspects() {
		aspects = append(aspects, string(aspect))
	}
	relations := []string{string(model.RelationAdditional), string(model.RelationAlternative)}
	for _, side := range []string{"new_contents_in_1", "new_contents_in_2"} {
		aspect, err := itemProperty(schema, side, "aspect")
		if err != nil {
			return nil, err
		}
		aspect.Enum = enumValues(aspects)
		relation, err := itemProperty(schema, side, "relation")
		if err != nil {
			return nil, err
		}
		relation.Enum = enumValues(relations)
	}
	return schema, nil
}

func itemProperty(schema *jsonschema.Schema, list, field string) (*jsonschema.Schema, error) {
	array, ok := schema.Properties[list]
	if !ok || array.Items == nil {
		return nil, fmt.Errorf("schema: %s is not a list property", list)
	}
	prop, ok := array.Items.Properties[field]
	if !ok {
		return nil, fmt.Errorf("schema: %s items have no %s property", list, field)
	}
	return prop, nil
}

func enumValues(values []string) []any {
	out := make([]any, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
