package records

import (
	"encoding/csv"
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/teranos/pulsebatch/errors"
	"github.com/teranos/pulsebatch/pulse/batch"
)

// JSONL reads one JSON object per record. Numbers are kept as json.Number.
type JSONL struct {
	dec *json.Decoder
	n   int
}

// NewJSONL reads JSON objects from r, separated by whitespace or newlines
func NewJSONL(r io.Reader) *JSONL {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &JSONL{dec: dec}
}

// Next implements batch.Iterator
func (j *JSONL) Next() (batch.Record, error) {
	var rec batch.Record
	if err := j.dec.Decode(&rec); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrapf(err, "jsonl record %d", j.n+1)
	}
	j.n++
	if rec == nil {
		return nil, errors.Newf("jsonl record %d: null is not an object", j.n)
	}
	return rec, nil
}

// CSV reads records keyed by the header row. Values are strings.
type CSV struct {
	r      *csv.Reader
	header []string
	n      int
}

// NewCSV reads comma-separated rows from r; the first row names the fields
func NewCSV(r io.Reader) *CSV {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false
	return &CSV{r: cr}
}

// Next implements batch.Iterator
func (c *CSV) Next() (batch.Record, error) {
	if c.header == nil {
		header, err := c.r.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, errors.Wrap(err, "csv header")
		}
		c.header = header
	}

	row, err := c.r.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrapf(err, "csv record %d", c.n+1)
	}
	c.n++

	rec := make(batch.Record, len(c.header))
	for i, name := range c.header {
		rec[name] = row[i]
	}
	return rec, nil
}

// YAML reads a stream of documents. A mapping document is one record; a
// sequence document yields one record per element.
type YAML struct {
	dec     *yaml.Decoder
	pending []batch.Record
	doc     int
}

// NewYAML reads YAML documents from r
func NewYAML(r io.Reader) *YAML {
	return &YAML{dec: yaml.NewDecoder(r)}
}

// Next implements batch.Iterator
func (y *YAML) Next() (batch.Record, error) {
	for len(y.pending) == 0 {
		var node yaml.Node
		if err := y.dec.Decode(&node); err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, errors.Wrapf(err, "yaml document %d", y.doc+1)
		}
		y.doc++

		recs, err := decodeDocument(&node)
		if err != nil {
			return nil, errors.Wrapf(err, "yaml document %d", y.doc)
		}
		y.pending = recs
	}

	rec := y.pending[0]
	y.pending = y.pending[1:]
	return rec, nil
}

func decodeDocument(node *yaml.Node) ([]batch.Record, error) {
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}

	switch node.Kind {
	case yaml.MappingNode:
		rec, err := decodeMapping(node)
		if err != nil {
			return nil, err
		}
		return []batch.Record{rec}, nil
	case yaml.SequenceNode:
		recs := make([]batch.Record, 0, len(node.Content))
		for i, item := range node.Content {
			if item.Kind != yaml.MappingNode {
				return nil, errors.Newf("element %d is not a mapping", i)
			}
			rec, err := decodeMapping(item)
			if err != nil {
				return nil, errors.Wrapf(err, "element %d", i)
			}
			recs = append(recs, rec)
		}
		return recs, nil
	case yaml.DocumentNode:
		// empty document
		return nil, nil
	default:
		return nil, errors.Newf("line %d: expected a mapping or a sequence of mappings", node.Line)
	}
}

// decodeMapping decodes into a plain map so nested mappings come back as
// map[string]any, the same shape the JSONL reader produces.
func decodeMapping(node *yaml.Node) (batch.Record, error) {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return nil, err
	}
	return batch.Record(m), nil
}
