package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// File is the operator policy as written in YAML. Every field is optional;
// a field that is present replaces the built-in default entirely.
type File struct {
	AllowedOperations []string             `yaml:"allowed_operations"`
	AllowAllTables    *bool                `yaml:"allow_all_tables"`
	MaxResultRows     *int                 `yaml:"max_result_rows"`
	ForbiddenKeywords []string             `yaml:"forbidden_keywords"`
	Tables            map[string]TableRule `yaml:"tables"`
	Masks             map[string]string    `yaml:"masks"`
}

// TableRule lists the readable columns of one table. An empty list opens every
// column.
type TableRule struct {
	Description string            `yaml:"description"`
	Columns     []string          `yaml:"columns"`
	Masks       map[string]string `yaml:"masks"`
}

// UnmarshalYAML accepts a bare column list as shorthand.
//
//	tables:
//	  public_messages: []            # every column
//	  users: [id, name]              # shorthand
//	  my_tweets:                     # full form
//	    description: "Streamer tweets"
//	    columns: [id, text]
//	    masks:
//	      author_email: redact
func (r *TableRule) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		cols := []string{}
		if err := value.Decode(&cols); err != nil {
			return fmt.Errorf("decoding column list: %w", err)
		}
		*r = TableRule{Columns: cols}
		return nil
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*r = TableRule{}
			return nil
		}
		return fmt.Errorf("line %d: table rule must be a column list or a mapping", value.Line)
	}

	type alias TableRule
	var a alias
	if err := value.Decode(&a); err != nil {
		return fmt.Errorf("decoding table rule: %w", err)
	}
	*r = TableRule(a)
	return nil
}
