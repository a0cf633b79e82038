package server

import "strconv"

// openAPIDocument describes the JSON endpoints in OpenAPI 3.
func openAPIDocument(title, version string) map[string]interface{} {
	properties := map[string]interface{}{}
	required := make([]string, 0, len(bookingFields))
	example := map[string]interface{}{
		"lead_time":             30,
		"no_of_special_request": 1,
		"avg_price_per_room":    150.0,
		"arrival_month":         6,
		"arrival_date":          15,
		"market_segment_type":   2,
		"no_of_week_nights":     3,
		"no_of_weekend_nights":  2,
		"type_of_meal_plan":     1,
		"room_type_reserved":    2,
	}
	for _, f := range bookingFields {
		p := map[string]interface{}{"type": "integer", "description": f.Label}
		if f.Float {
			p["type"] = "number"
		}
		if n, err := strconv.Atoi(f.Min); err == nil {
			p["minimum"] = n
		}
		if n, err := strconv.Atoi(f.Max); err == nil {
			p["maximum"] = n
		}
		properties[f.Name] = p
		required = append(required, f.Name)
	}

	detailSchema := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"detail": map[string]interface{}{}},
	}
	jsonContent := func(schema interface{}) map[string]interface{} {
		return map[string]interface{}{"application/json": map[string]interface{}{"schema": schema}}
	}
	ref := func(name string) map[string]interface{} {
		return map[string]interface{}{"$ref": "#/components/schemas/" + name}
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       title,
			"description": "API for predicting hotel booking cancellations",
			"version":     version,
		},
		"paths": map[string]interface{}{
			"/api/predict": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Predict whether a booking will be cancelled",
					"operationId": "predictBooking",
					"requestBody": map[string]interface{}{
						"required": true,
						"content":  jsonContent(ref("BookingFeatures")),
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Prediction", "content": jsonContent(ref("PredictionResponse"))},
						"422": map[string]interface{}{"description": "Validation error", "content": jsonContent(detailSchema)},
						"500": map[string]interface{}{"description": "Prediction error", "content": jsonContent(detailSchema)},
						"503": map[string]interface{}{"description": "Model not loaded", "content": jsonContent(detailSchema)},
					},
				},
			},
			"/api/predictions": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List recently served predictions",
					"operationId": "listPredictions",
					"parameters": []interface{}{
						map[string]interface{}{
							"name": "limit", "in": "query",
							"schema": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 500, "default": defaultListLimit},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Recent predictions, newest first"},
						"404": map[string]interface{}{"description": "Prediction log disabled", "content": jsonContent(detailSchema)},
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"operationId": "health",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Service status", "content": jsonContent(ref("Health"))},
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"BookingFeatures": map[string]interface{}{
					"type":       "object",
					"required":   required,
					"properties": properties,
					"example":    example,
				},
				"PredictionResponse": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"prediction":      map[string]interface{}{"type": "integer", "enum": []int{0, 1}},
						"prediction_text": map[string]interface{}{"type": "string"},
						"probability":     map[string]interface{}{"type": "number"},
						"features":        map[string]interface{}{"type": "object"},
					},
				},
				"Health": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"status":       map[string]interface{}{"type": "string"},
						"model_loaded": map[string]interface{}{"type": "boolean"},
						"version":      map[string]interface{}{"type": "string"},
					},
				},
			},
		},
	}
}
