// Package frontmatter reads and writes markdown notes that carry YAML
// frontmatter between --- delimiters.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

const delim = "---\n"

// ErrNoFrontmatter is returned when a document does not open with ---.
var ErrNoFrontmatter = errors.New("frontmatter: missing opening --- delimiter")

// Parse splits a markdown document into its frontmatter (raw YAML bytes) and
// body. The closing "---" line ends the frontmatter block; a single newline
// after it is consumed.
func Parse(data []byte) (fm []byte, body []byte, err error) {
	if !bytes.HasPrefix(data, []byte(delim)) {
		return nil, nil, ErrNoFrontmatter
	}
	rest := data[len(delim):]
	if bytes.HasPrefix(rest, []byte(delim)) {
		// Empty block.
		return nil, rest[len(delim):], nil
	}
	idx := bytes.Index(rest, []byte("\n---\n"))
	if idx < 0 {
		if !bytes.HasSuffix(rest, []byte("\n---")) {
			return nil, nil, fmt.Errorf("frontmatter: missing closing --- delimiter")
		}
		return rest[:len(rest)-len("\n---")+1], nil, nil
	}
	return rest[:idx+1], rest[idx+len("\n---\n"):], nil
}

// Decode parses data and unmarshals its frontmatter into v, returning the body.
func Decode(data []byte, v any) ([]byte, error) {
	fm, body, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(fm, v); err != nil {
		return nil, fmt.Errorf("frontmatter: unmarshal: %w", err)
	}
	return body, nil
}

// Write marshals v as YAML frontmatter and appends body.
func Write(v any, body string) ([]byte, error) {
	fm, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("frontmatter: marshal: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delim)
	buf.Write(fm)
	buf.WriteString(delim)
	buf.WriteString(body)
	return buf.Bytes(), nil
}
