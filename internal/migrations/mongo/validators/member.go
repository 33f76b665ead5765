package validators

import "go.mongodb.org/mongo-driver/bson"

var MemberValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"name",
			"email",
			"eligible_class_types",
			"cancellation_credits",
			"assigned_classes",
			"attendance_history",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"email": bson.M{
				"bsonType":  "string",
				"minLength": 3,
				"maxLength": 254,
			},

			"eligible_class_types": bson.M{
				"bsonType": "array",
				"maxItems": 10,
				"items": bson.M{
					"bsonType": "string",
				},
			},

			// The credit balance is a non-negative counter; the conditional
			// debit in the repository relies on this floor.
			"cancellation_credits": bson.M{
				"bsonType": "int",
				"minimum":  0,
			},

			"assigned_classes": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "string",
				},
			},

			"attendance_history": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"class_id", "timestamp"},
					"properties": bson.M{
						"class_id": bson.M{
							"bsonType": "string",
						},
						"timestamp": bson.M{
							"bsonType": "date",
						},
					},
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
