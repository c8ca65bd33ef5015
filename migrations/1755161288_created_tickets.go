package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "pbc_tickets_0001",
			"name": "tickets",
			"type": "base",
			"system": false,
			"fields": [
				{
					"id": "text_ref",
					"name": "ref",
					"type": "text",
					"required": true,
					"presentable": true,
					"min": 0,
					"max": 0,
					"pattern": ""
				},
				{
					"id": "text_event",
					"name": "event_id",
					"type": "text",
					"required": true,
					"min": 0,
					"max": 0,
					"pattern": ""
				},
				{
					"id": "text_attendee",
					"name": "attendee_name",
					"type": "text",
					"required": false,
					"min": 0,
					"max": 0,
					"pattern": ""
				},
				{
					"id": "text_tier",
					"name": "tier",
					"type": "text",
					"required": false,
					"min": 0,
					"max": 0,
					"pattern": ""
				},
				{
					"id": "number_price",
					"name": "price",
					"type": "number",
					"required": false,
					"min": null,
					"max": null,
					"noDecimal": false
				},
				{
					"id": "select_status",
					"name": "status",
					"type": "select",
					"required": true,
					"maxSelect": 1,
					"values": ["valid", "revoked", "refunded"]
				},
				{
					"id": "autodate_created",
					"name": "created",
					"type": "autodate",
					"onCreate": true,
					"onUpdate": false
				}
			],
			"indexes": [
				"CREATE UNIQUE INDEX idx_tickets_ref ON tickets (ref)"
			]
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
