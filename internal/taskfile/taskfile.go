// Package taskfile implements the `.task` serialization format. The spec
// treats this format as an external black box reached only through
// Parse/Serialize calls; this package picks a concrete YAML encoding
// (matching the teacher's use of gopkg.in/yaml.v3 for its own on-disk
// records) so the rest of the engine never has to know the wire format.
package taskfile

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/apply-task/taskengine/internal/model"
)

// Parse decodes raw `.task` file content into an Item.
func Parse(data []byte) (*model.Item, error) {
	var item model.Item
	if err := yaml.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("parse task file: %w", err)
	}
	return &item, nil
}

// Serialize encodes an Item into `.task` file content.
func Serialize(item *model.Item) ([]byte, error) {
	data, err := yaml.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("serialize task file: %w", err)
	}
	return data, nil
}
