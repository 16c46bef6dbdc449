package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/rglservice/mediation-strapi-import-export/internal/importer"
	"github.com/rglservice/mediation-strapi-import-export/internal/parsers"
	"github.com/rglservice/mediation-strapi-import-export/internal/store"
)

// UserLookup resolves the acting user for a queued import.
type UserLookup interface {
	GetUserByID(id uint) (*store.User, error)
}

// ImportDataTask carries one queued import: the raw payload plus the
// options that arrived with the request. Queued imports run through
// exactly the same orchestrator as synchronous ones.
type ImportDataTask struct {
	Payload         json.RawMessage `json:"payload"`
	Model           string          `json:"model"`
	Format          string          `json:"format"`
	IdentifierField string          `json:"identifier_field,omitempty"`
	ImportAsDrafts  bool            `json:"import_as_drafts"`
	UserID          uint            `json:"user_id,omitempty"`
}

// Config returns the queue configuration for queued imports.
func (t ImportDataTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "import_data",
		MaxAttempts: 1, // partial writes must not be replayed
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ImportDataProcessor creates a processor function for ImportDataTask.
func ImportDataProcessor(imp *importer.Importer, users UserLookup) backlite.QueueProcessor[ImportDataTask] {
	return func(ctx context.Context, task ImportDataTask) error {
		opts := importer.Options{
			Model:           task.Model,
			Format:          task.Format,
			IdentifierField: task.IdentifierField,
			ImportAsDrafts:  task.ImportAsDrafts,
		}
		if task.UserID != 0 && users != nil {
			user, err := users.GetUserByID(task.UserID)
			if err != nil {
				return fmt.Errorf("resolve import user %d: %w", task.UserID, err)
			}
			opts.User = user
		}

		// The pre-decoded format expects an in-memory value, not raw
		// JSON text; decode it before handing over.
		var payload any = []byte(task.Payload)
		if task.Format == parsers.FormatObject {
			var decoded any
			if err := json.Unmarshal(task.Payload, &decoded); err != nil {
				return fmt.Errorf("decode queued payload for %s: %w", task.Model, err)
			}
			payload = decoded
		}

		result, err := imp.ImportData(payload, opts)
		if err != nil {
			return fmt.Errorf("queued import into %s: %w", task.Model, err)
		}

		log.Printf("[TASK] Queued import into %s finished with %d failures", task.Model, len(result.Failures))
		return nil
	}
}

// NewImportDataQueue creates a backlite queue for queued imports.
func NewImportDataQueue(imp *importer.Importer, users UserLookup) backlite.Queue {
	return backlite.NewQueue(ImportDataProcessor(imp, users))
}
