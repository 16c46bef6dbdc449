package config

// Default paths
const (
	// DefaultDatabasePath is the default path for the entity store database
	DefaultDatabasePath = "./mediation-import.db"

	// DefaultSchemaPath is the default path for the model schema file
	DefaultSchemaPath = "./schema.json"
)
