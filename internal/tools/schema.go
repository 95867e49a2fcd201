package tools

import "github.com/haulbot/dispatcher/internal/llm"

// Name identifies a tool the model may call.
type Name string

const (
	UpdateUserPreference Name = "update_user_preference"
	GetRoute             Name = "get_route"
	GetGasStations       Name = "get_gas_stations"
	GetRepairStations    Name = "get_repair_stations"
)

type param struct {
	name        string
	description string
}

type toolDef struct {
	description string
	params      []param
}

var (
	originParam      = param{"origin", "Starting point of the journey"}
	destinationParam = param{"destination", "Ending point/destination of the journey"}
)

var toolDefs = map[Name]toolDef{
	UpdateUserPreference: {
		description: "Detect user language and update the preference if language is not english",
		params:      []param{{"language", "Drivers detected language code"}},
	},
	GetRoute: {
		description: "Get driving route for a delivery",
		params:      []param{originParam, destinationParam},
	},
	GetGasStations: {
		description: "Get fuel stations nearby",
		params:      []param{originParam, destinationParam},
	},
	GetRepairStations: {
		description: "Get repair shops along the route",
		params:      []param{originParam, destinationParam},
	},
}

// order fixes the position of each tool in the schema sent to the model.
var order = []Name{UpdateUserPreference, GetRoute, GetGasStations, GetRepairStations}

// Required lists the argument names a tool cannot run without.
func (n Name) Required() []string {
	s, ok := toolDefs[n]
	if !ok {
		return nil
	}
	out := make([]string, len(s.params))
	for i, p := range s.params {
		out[i] = p.name
	}
	return out
}

// Definitions returns the strict function schema for every tool. Each call
// returns a fresh copy.
func Definitions() []llm.Tool {
	defs := make([]llm.Tool, 0, len(order))
	for _, name := range order {
		s := toolDefs[name]
		props := make(map[string]any, len(s.params))
		required := make([]string, 0, len(s.params))
		for _, p := range s.params {
			props[p.name] = map[string]any{
				"type":        "string",
				"description": p.description,
			}
			required = append(required, p.name)
		}
		defs = append(defs, llm.Tool{
			Name:        string(name),
			Description: s.description,
			Strict:      true,
			Parameters: map[string]any{
				"type":                 "object",
				"properties":           props,
				"required":             required,
				"additionalProperties": false,
			},
		})
	}
	return defs
}
