package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/errgroup"

	"github.com/c360/semflow/errors"
)

// PortRef names a port in a graph document as name[hexid]#port
type PortRef struct {
	Process string
	ID      uint64
	Port    string
}

func (r PortRef) String() string {
	return fmt.Sprintf("%s[%x]#%s", r.Process, r.ID, r.Port)
}

var portRefPattern = regexp.MustCompile(`^(.*)\[([0-9a-fA-F]+)\]#(.+)$`)

// ParsePortRef parses name[hexid]#port. The process name may itself contain
// brackets; the last bracketed hex group before '#' is the id.
func ParsePortRef(text string) (PortRef, error) {
	m := portRefPattern.FindStringSubmatch(text)
	if m == nil {
		return PortRef{}, errors.WrapInvalid(errors.Detail(errors.ErrMalformedReference, "%q", text),
			"Document", "ParsePortRef", "parse reference")
	}
	id, err := strconv.ParseUint(m[2], 16, 64)
	if err != nil {
		return PortRef{}, errors.WrapInvalid(errors.Detail(errors.ErrMalformedReference, "%q: %v", text, err),
			"Document", "ParsePortRef", "parse id")
	}
	return PortRef{Process: m[1], ID: id, Port: m[3]}, nil
}

// Document is the serialized form of a sheet
type Document struct {
	Processes   []ProcessDoc    `json:"processes"`
	Connections []ConnectionDoc `json:"connections"`
}

// ProcessDoc describes one process. Keys other than the named fields are
// free attributes.
type ProcessDoc struct {
	ID         string
	Name       string
	Handler    string
	Parameters map[string]any
	State      map[string]any
	Attributes map[string]any
}

type processDocFields struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Handler    string         `json:"handler"`
	Parameters map[string]any `json:"parameters,omitempty"`
	State      map[string]any `json:"state,omitempty"`
}

// MarshalJSON inlines the attributes next to the named fields
func (d ProcessDoc) MarshalJSON() ([]byte, error) {
	return marshalInline(processDocFields{
		ID:         d.ID,
		Name:       d.Name,
		Handler:    d.Handler,
		Parameters: d.Parameters,
		State:      d.State,
	}, d.Attributes)
}

// UnmarshalJSON splits the named fields from the attributes
func (d *ProcessDoc) UnmarshalJSON(data []byte) error {
	var fields processDocFields
	attrs, err := unmarshalInline(data, &fields, processReserved)
	if err != nil {
		return err
	}
	*d = ProcessDoc{
		ID:         fields.ID,
		Name:       fields.Name,
		Handler:    fields.Handler,
		Parameters: fields.Parameters,
		State:      fields.State,
		Attributes: attrs,
	}
	return nil
}

// ConnectionDoc describes one connection by its port references
type ConnectionDoc struct {
	From       string
	To         string
	Attributes map[string]any
}

type connectionDocFields struct {
	From string `json:"from"`
	To   string `json:"to"`
}

var connectionReserved = []string{"from", "to"}

// MarshalJSON inlines the attributes next to from and to
func (d ConnectionDoc) MarshalJSON() ([]byte, error) {
	return marshalInline(connectionDocFields{From: d.From, To: d.To}, d.Attributes)
}

// UnmarshalJSON splits from and to from the attributes
func (d *ConnectionDoc) UnmarshalJSON(data []byte) error {
	var fields connectionDocFields
	attrs, err := unmarshalInline(data, &fields, connectionReserved)
	if err != nil {
		return err
	}
	*d = ConnectionDoc{From: fields.From, To: fields.To, Attributes: attrs}
	return nil
}

func marshalInline(fields any, attrs map[string]any) ([]byte, error) {
	base, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return base, nil
	}
	merged := make(map[string]json.RawMessage, len(attrs)+5)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range attrs {
		if _, taken := merged[k]; taken {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

func unmarshalInline(data []byte, fields any, reserved []string) (map[string]any, error) {
	if err := json.Unmarshal(data, fields); err != nil {
		return nil, err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, key := range reserved {
		delete(all, key)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// DocumentSchema returns the JSON schema graph documents are checked against
func DocumentSchema() string { return documentSchema }

const documentSchema = `{
  "type": "object",
  "required": ["processes"],
  "properties": {
    "processes": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["id", "handler"],
        "properties": {
          "id": {"type": "string", "pattern": "^[0-9a-fA-F]+$"},
          "name": {"type": "string"},
          "handler": {"type": "string", "minLength": 1},
          "parameters": {"type": "object"},
          "state": {"type": "object"}
        }
      }
    },
    "connections": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["from", "to"],
        "properties": {
          "from": {"type": "string"},
          "to": {"type": "string"}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func validateDocumentJSON(data []byte) error {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	})
	if schemaErr != nil {
		return errors.WrapFatal(schemaErr, "Document", "Validate", "compile schema")
	}
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.WrapInvalid(errors.Detail(errors.ErrInvalidDocument, "%v", err), "Document", "Validate", "schema validation")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.WrapInvalid(errors.Detail(errors.ErrInvalidDocument, "%s", strings.Join(msgs, "; ")),
			"Document", "Validate", "schema validation")
	}
	return nil
}

// ParseDocument decodes and validates a JSON graph document
func ParseDocument(data []byte) (Document, error) {
	if err := validateDocumentJSON(data); err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, errors.WrapInvalid(errors.Detail(errors.ErrInvalidDocument, "%v", err), "Document", "Parse", "decode")
	}
	return doc, nil
}

// Validate checks the document against its schema and parses every id and
// port reference
func (d Document) Validate() error {
	data, err := json.Marshal(d)
	if err != nil {
		return errors.WrapInvalid(errors.Detail(errors.ErrInvalidDocument, "%v", err), "Document", "Validate", "encode")
	}
	if err := validateDocumentJSON(data); err != nil {
		return err
	}
	_, err = d.plan()
	return err
}

type importPlan struct {
	ids   []uint64
	conns [][2]PortRef
}

func (d Document) plan() (importPlan, error) {
	plan := importPlan{ids: make([]uint64, len(d.Processes))}
	seen := make(map[uint64]bool, len(d.Processes))
	for i, pd := range d.Processes {
		id, err := strconv.ParseUint(pd.ID, 16, 64)
		if err != nil {
			return plan, errors.WrapInvalid(errors.Detail(errors.ErrInvalidDocument, "process id %q: %v", pd.ID, err),
				"Document", "Validate", "parse id")
		}
		if seen[id] {
			return plan, errors.WrapInvalid(errors.Detail(errors.ErrDuplicateID, "%s", pd.ID), "Document", "Validate", "id check")
		}
		seen[id] = true
		plan.ids[i] = id
	}
	for _, cd := range d.Connections {
		from, err := ParsePortRef(cd.From)
		if err != nil {
			return plan, err
		}
		to, err := ParsePortRef(cd.To)
		if err != nil {
			return plan, err
		}
		for _, ref := range []PortRef{from, to} {
			if !seen[ref.ID] {
				return plan, errors.WrapInvalid(errors.Detail(errors.ErrUnknownProcess, "%s", ref), "Document", "Validate", "reference check")
			}
		}
		plan.conns = append(plan.conns, [2]PortRef{from, to})
	}
	return plan, nil
}

// ExportGraph serializes the sheet. Processes follow creation order and
// connections follow Connections.
func (s *Sheet) ExportGraph() Document {
	doc := Document{
		Processes:   make([]ProcessDoc, 0, len(s.order)),
		Connections: []ConnectionDoc{},
	}
	for _, p := range s.order {
		doc.Processes = append(doc.Processes, ProcessDoc{
			ID:         strconv.FormatUint(p.id, 16),
			Name:       p.name,
			Handler:    p.handlerName,
			Parameters: maps.Clone(map[string]any(p.params)),
			State:      p.ExportState(),
			Attributes: p.attrs.All(),
		})
	}
	for _, c := range s.Connections() {
		doc.Connections = append(doc.Connections, ConnectionDoc{
			From:       c.start.String(),
			To:         c.end.String(),
			Attributes: c.attrs.All(),
		})
	}
	return doc
}

// ImportGraph adds the document's processes and connections to the sheet.
// Handlers are loaded in parallel first; the graph is then built on the
// executor. Document ids are kept when free. The returned map takes document
// ids to sheet ids. On error nothing of the document remains in the sheet.
func (s *Sheet) ImportGraph(ctx context.Context, doc Document) (map[uint64]uint64, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	plan, _ := doc.plan()

	handlers := make([]string, 0, len(doc.Processes))
	for _, pd := range doc.Processes {
		if !slices.Contains(handlers, pd.Handler) {
			handlers = append(handlers, pd.Handler)
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range handlers {
		g.Go(func() error {
			_, err := s.handlers.LoadHandler(gctx, name)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "Sheet", "ImportGraph", "load handlers")
	}
	if err := s.handlers.AwaitIdle(ctx); err != nil {
		return nil, errors.WrapTransient(err, "Sheet", "ImportGraph", "await loader")
	}

	mapping := make(map[uint64]uint64, len(doc.Processes))
	err := s.Do(ctx, func() error {
		created := make([]*Process, 0, len(doc.Processes))
		rollback := func(cause error) error {
			for _, p := range slices.Backward(created) {
				if err := p.Delete(); err != nil {
					s.logger.Error("Import rollback failed", "process", p.String(), "error", err)
				}
			}
			clear(mapping)
			return cause
		}

		for i, pd := range doc.Processes {
			id := plan.ids[i]
			p, err := s.CreateProcess(ProcessSpec{
				ID:         &id,
				Name:       pd.Name,
				Handler:    pd.Handler,
				Parameters: pd.Parameters,
				Attributes: pd.Attributes,
				State:      pd.State,
			})
			if err != nil {
				return rollback(err)
			}
			created = append(created, p)
			mapping[id] = p.id
		}

		for i, refs := range plan.conns {
			from, err := s.resolveRef(refs[0], mapping, Out)
			if err != nil {
				return rollback(err)
			}
			to, err := s.resolveRef(refs[1], mapping, In)
			if err != nil {
				return rollback(err)
			}
			c, err := s.connect(from, to)
			if err != nil {
				return rollback(err)
			}
			if err := c.attrs.Merge(doc.Connections[i].Attributes); err != nil {
				return rollback(errors.WrapInvalid(err, "Sheet", "ImportGraph", "connection attributes"))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Graph imported", "processes", len(doc.Processes), "connections", len(doc.Connections))
	return mapping, nil
}

func (s *Sheet) resolveRef(ref PortRef, mapping map[uint64]uint64, dir Direction) (*Port, error) {
	p := s.processes[mapping[ref.ID]]
	if p == nil {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrUnknownProcess, "%s", ref), "Sheet", "ImportGraph", "resolve reference")
	}
	port := p.findPort(ref.Port, dir)
	if port == nil {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrUnknownPort, "%s port %s", dir, ref), "Sheet", "ImportGraph", "resolve reference")
	}
	return port, nil
}
