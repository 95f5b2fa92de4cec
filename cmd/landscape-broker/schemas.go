package main

import (
	"github.com/canonical/landscape-client-sub002/schema"
)

// registerBuiltinSchemas adds the client->server message types the broker
// itself enqueues (spec §4.5/§4.7); server->client messages are dispatched
// straight off the decoded response body and never pass through the
// registry (see exchange.processResponse).
func registerBuiltinSchemas(reg *schema.Registry) error {
	messages := []schema.Message{
		{
			Type: "register",
			Keys: map[string]schema.Schema{
				"computer_title":        schema.Text{},
				"account_name":          schema.Text{},
				"registration_password": schema.Text{},
				"hostname":              schema.Text{},
				"tags": schema.AnyOf{Options: []schema.Schema{
					schema.List{Elem: schema.Text{}},
					schema.Const{Value: nil},
				}},
				"access_group": schema.Text{},
			},
			Optional: map[string]bool{
				"registration_password": true,
				"tags":                  true,
				"access_group":          true,
			},
		},
		{
			Type: "resynchronize",
			Keys: map[string]schema.Schema{
				"operation-id": schema.Text{},
			},
		},
	}

	for _, m := range messages {
		if err := reg.AddSchema(m); err != nil {
			return err
		}
	}
	return nil
}
