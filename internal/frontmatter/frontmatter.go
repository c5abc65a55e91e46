// Package frontmatter splits and rewrites YAML note headers. Rewrites touch
// only the requested keys and keep every other key, its order, and its
// comments intact.
package frontmatter

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Split separates the YAML frontmatter block from the Markdown body.
// When no frontmatter is present (or the YAML is invalid) the whole input
// is returned as body with a nil map.
func Split(data []byte) (map[string]any, string) {
	raw, body, found := splitRaw(data)
	if !found {
		return nil, body
	}
	var fm map[string]any
	if err := yaml.Unmarshal(raw, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// splitRaw returns the raw YAML block bytes and the body. found is false
// when the input carries no frontmatter fences.
func splitRaw(data []byte) (yamlBlock []byte, body string, found bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), false
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), false
	}
	yamlBlock = rest[:idx]
	after := rest[idx+1+len(delim):]
	body = strings.TrimLeft(string(after), "\n\r")
	return yamlBlock, body, true
}

// Update rewrites the frontmatter with the given key/value assignments and
// returns the reassembled note. Keys not named in set are preserved verbatim
// at the YAML node level; a note without frontmatter gains a header holding
// only the assigned keys. Assigning a nil value removes the key.
func Update(data []byte, set map[string]any) ([]byte, error) {
	raw, body, found := splitRaw(data)

	doc := &yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
	}
	if found {
		var parsed yaml.Node
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("frontmatter: parse: %w", err)
		}
		if len(parsed.Content) > 0 {
			if parsed.Content[0].Kind != yaml.MappingNode {
				return nil, fmt.Errorf("frontmatter: header is not a mapping")
			}
			doc = &parsed
		}
	}
	mapping := doc.Content[0]

	// Deterministic application order.
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if set[k] == nil {
			removeKey(mapping, k)
			continue
		}
		vn := &yaml.Node{}
		if err := vn.Encode(set[k]); err != nil {
			return nil, fmt.Errorf("frontmatter: encode %s: %w", k, err)
		}
		setKey(mapping, k, vn)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("frontmatter: encode header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("frontmatter: close encoder: %w", err)
	}

	var out bytes.Buffer
	out.WriteString(delim + "\n")
	out.Write(buf.Bytes())
	out.WriteString(delim + "\n")
	if body != "" {
		out.WriteString("\n")
		out.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			out.WriteString("\n")
		}
	}
	return out.Bytes(), nil
}

func setKey(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = value
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

func removeKey(mapping *yaml.Node, key string) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
			return
		}
	}
}
