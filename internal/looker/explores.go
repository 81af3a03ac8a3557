package looker

import (
	"context"
	"fmt"
	"net/url"

	"github.com/askbi/askbi/internal/semantic"
)

type exploreField struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Hidden      bool   `json:"hidden"`
}

// Fields describes an explore. View is the explore name that write queries
// target, never its base view. Hidden fields are skipped; dimensions come
// before measures.
func (c *Client) Fields(ctx context.Context, model, explore string) (semantic.Explore, error) {
	var parsed struct {
		Name   string `json:"name"`
		Fields struct {
			Dimensions []exploreField `json:"dimensions"`
			Measures   []exploreField `json:"measures"`
		} `json:"fields"`
	}
	path := fmt.Sprintf("/lookml_models/%s/explores/%s?fields=name,fields",
		url.PathEscape(model), url.PathEscape(explore))
	if err := c.do(ctx, "GET", path, nil, &parsed); err != nil {
		return semantic.Explore{}, fmt.Errorf("describe explore %s/%s: %w", model, explore, err)
	}

	out := semantic.Explore{Model: model, Name: explore, View: parsed.Name}
	if out.View == "" {
		out.View = explore
	}
	for _, group := range [][]exploreField{parsed.Fields.Dimensions, parsed.Fields.Measures} {
		for _, field := range group {
			if field.Hidden || field.Name == "" {
				continue
			}
			out.Fields = append(out.Fields, semantic.FieldMetadata{
				Name:        field.Name,
				Label:       field.Label,
				Description: field.Description,
				Type:        field.Type,
			})
		}
	}
	return out, nil
}
