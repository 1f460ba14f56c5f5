package parser

import (
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/loader"
	"github.com/c360/semflow/types"
)

// HandlerName is the module name of the handler
const HandlerName = "data.parse"

func fromParams(params flow.Parameters) (Parser, error) {
	return New(params.GetString("format", "json"), params.GetStrings("columns", nil), params.GetString("separator", ""))
}

// Handler returns the data.parse handler. Parameters: format (json or
// csv), columns and separator for csv.
func Handler() *flow.Handler {
	return &flow.Handler{
		Name:        HandlerName,
		Description: "Parses text packets into object packets",
		Parameters: []flow.ParameterSpec{
			{Name: "format", Type: "string", Default: "json"},
			{Name: "columns", Type: "array", Description: "CSV column names; first record is the header when empty"},
			{Name: "separator", Type: "string", Description: "CSV field separator"},
		},
		ParameterSchema: `{"type": "object", "properties": {"format": {"enum": ["json", "csv"]}}}`,
		CheckParameters: func(params flow.Parameters, _ flow.Environment) error {
			_, err := fromParams(params)
			return err
		},
		OnCreate: func(p *flow.Process, params flow.Parameters) error {
			parser, err := fromParams(params)
			if err != nil {
				return err
			}
			p.SetState(parser)
			for _, spec := range []flow.PortSpec{
				{Name: "in", Direction: flow.In, Discipline: flow.Streamed, Type: types.Any},
				{Name: "out", Direction: flow.Out, Discipline: flow.Streamed, Type: types.Object},
			} {
				if _, err := p.CreatePort(spec); err != nil {
					return err
				}
			}
			return nil
		},
		OnChange: func(p *flow.Process, change flow.Change) {
			if change.Reason != flow.ChangeParameters {
				return
			}
			if parser, err := fromParams(p.Parameters()); err == nil {
				p.SetState(parser)
			}
		},
		OnPacket: func(p *flow.Process, _ string, packet any) error {
			var data []byte
			switch v := packet.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				return errors.WrapInvalid(errors.Detail(ErrInvalidFormat, "packet %T is not text", packet),
					"Parser", "OnPacket", "packet check")
			}
			records, err := p.State().(Parser).Parse(data)
			if err != nil {
				return err
			}
			for _, record := range records {
				if err := p.Send("out", record); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// Register adds the handler to catalog
func Register(catalog *loader.Catalog) error {
	return catalog.RegisterHandler(Handler())
}
