package model

import "time"

// Document is one record in a tenant store's documents collection. The
// payload is schemaless; tenants shape their own documents.
type Document struct {
	ID        string                 `bson:"_id" json:"id"`
	Data      map[string]interface{} `bson:"data" json:"data"`
	CreatedBy string                 `bson:"created_by" json:"createdBy"`
	CreatedAt time.Time              `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time              `bson:"updated_at" json:"updatedAt"`
}
