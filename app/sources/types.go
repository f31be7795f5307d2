package sources

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Source is one entry of a category list. In YAML it is either a bare URL or
// a mapping with url and an optional name.
type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

func (s *Source) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		s.URL = node.Value
		return nil
	case yaml.MappingNode:
		type plain Source
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		*s = Source(p)
		return nil
	default:
		return fmt.Errorf("line %d: source must be a URL or a mapping with url and name", node.Line)
	}
}

// Config maps category names to their sources.
type Config map[string][]Source
