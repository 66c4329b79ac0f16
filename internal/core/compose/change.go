package compose

import (
	"bytes"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Structural Change Detection
// =============================================================================

// maskedEnvValue replaces every environment value before comparison.
const maskedEnvValue = "__ENV__"

// HasStructuralChange reports whether next differs from current in anything
// other than environment values. Key order, comments and quoting style are
// ignored. If either side fails to parse the raw strings are compared.
func HasStructuralChange(current, next string) bool {
	a, errA := canonicalize(current)
	b, errB := canonicalize(next)
	if errA != nil || errB != nil {
		return current != next
	}
	return a != b
}

// canonicalize parses into yaml.Node, which keeps scalars as written so
// numbers never drift, then masks environment values and re-encodes with
// sorted keys.
func canonicalize(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyInput
	}
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(content), &root); err != nil {
		return "", err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return "", ErrInvalidYAML
	}

	doc := root.Content[0]
	maskEnvironment(doc)
	canonicalNode(doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// maskEnvironment replaces values under every "environment" key, at any depth.
func maskEnvironment(n *yaml.Node) {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.Value == "environment" {
				maskEnvValues(val)
				continue
			}
			maskEnvironment(val)
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			maskEnvironment(c)
		}
	}
}

func maskEnvValues(env *yaml.Node) {
	switch env.Kind {
	case yaml.MappingNode:
		for i := 1; i < len(env.Content); i += 2 {
			env.Content[i] = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: maskedEnvValue}
		}
	case yaml.SequenceNode:
		for _, item := range env.Content {
			if item.Kind != yaml.ScalarNode {
				continue
			}
			if key, _, found := strings.Cut(item.Value, "="); found {
				item.Value = key + "=" + maskedEnvValue
			}
		}
	}
}

// canonicalNode sorts mapping keys and clears comments and styles.
func canonicalNode(n *yaml.Node) {
	n.HeadComment, n.LineComment, n.FootComment = "", "", ""
	n.Style = 0

	for _, c := range n.Content {
		canonicalNode(c)
	}
	if n.Kind != yaml.MappingNode {
		return
	}

	type pair struct{ key, val *yaml.Node }
	pairs := make([]pair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		pairs = append(pairs, pair{n.Content[i], n.Content[i+1]})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].key.Value < pairs[j].key.Value })
	for i, p := range pairs {
		n.Content[2*i] = p.key
		n.Content[2*i+1] = p.val
	}
}
