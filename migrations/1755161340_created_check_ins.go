package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		// The unique index on (event_id, ticket_id) is the linearization
		// point for concurrent stations: exactly one insert per ticket wins.
		jsonData := `{
			"id": "pbc_check_ins_0001",
			"name": "check_ins",
			"type": "base",
			"system": false,
			"fields": [
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
					"id": "text_ticket",
					"name": "ticket_id",
					"type": "text",
					"required": true,
					"presentable": true,
					"min": 0,
					"max": 0,
					"pattern": ""
				},
				{
					"id": "text_station",
					"name": "station_id",
					"type": "text",
					"required": true,
					"min": 0,
					"max": 0,
					"pattern": ""
				},
				{
					"id": "select_method",
					"name": "method",
					"type": "select",
					"required": true,
					"maxSelect": 1,
					"values": ["qr_code", "kiosk", "manual"]
				},
				{
					"id": "text_scan",
					"name": "client_scan_id",
					"type": "text",
					"required": true,
					"min": 0,
					"max": 0,
					"pattern": ""
				},
				{
					"id": "date_checked_in",
					"name": "checked_in_at",
					"type": "date",
					"required": true
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
				"CREATE UNIQUE INDEX idx_check_ins_ticket ON check_ins (event_id, ticket_id)",
				"CREATE UNIQUE INDEX idx_check_ins_scan ON check_ins (client_scan_id)"
			]
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("check_ins")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
