package validators

import "go.mongodb.org/mongo-driver/bson"

// ClassValidator enforces the seat invariant's building blocks at the store
// boundary: seats_available can never be written negative, and the list
// fields must always be present.
var ClassValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"type",
			"day_of_week",
			"start_time",
			"end_time",
			"date",
			"capacity",
			"seats_available",
			"enrolled",
			"waitlist",
			"attendance",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"type": bson.M{
				"enum": []string{"functional", "pilates", "zumba"},
			},

			"day_of_week": bson.M{
				"enum": []string{
					"Sunday", "Monday", "Tuesday", "Wednesday",
					"Thursday", "Friday", "Saturday",
				},
			},

			"start_time": bson.M{
				"bsonType": "string",
				"pattern":  "^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$",
			},

			"end_time": bson.M{
				"bsonType": "string",
				"pattern":  "^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$",
			},

			"date": bson.M{
				"bsonType": "date",
			},

			"capacity": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  200,
			},

			"seats_available": bson.M{
				"bsonType": "int",
				"minimum":  0,
			},

			"enrolled": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "string",
				},
			},

			"waitlist": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "string",
				},
			},

			"attendance": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "string",
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
