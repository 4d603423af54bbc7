package tools

import "github.com/sashabaranov/go-openai/jsonschema"

func objSchema(props map[string]jsonschema.Definition, required ...string) jsonschema.Definition {
	return jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: props,
		Required:   required,
	}
}

func strProp(desc string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.String, Description: desc}
}

func intProp(desc string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Integer, Description: desc}
}

func numProp(desc string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Number, Description: desc}
}

func boolProp(desc string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Boolean, Description: desc}
}

func strArrayProp(desc string) jsonschema.Definition {
	return jsonschema.Definition{
		Type:        jsonschema.Array,
		Description: desc,
		Items:       &jsonschema.Definition{Type: jsonschema.String},
	}
}
