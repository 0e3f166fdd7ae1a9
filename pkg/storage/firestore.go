package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/phantomwatt/phantomwatt/pkg/log"
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Documents live under "deployments/{deployment}": a single
// "config/config" document and one document per output in "outputs".
type FirestoreProvider struct {
	client     *firestore.Client
	projectID  string
	database   string
	deployment string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	deployment := lflag.String("firestore-deployment", "default", "Deployment name scoping all documents")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.deployment = *deployment

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	if f.deployment == "" {
		f.deployment = "default"
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) deploymentDoc() *firestore.DocumentRef {
	return f.client.Collection("deployments").Doc(f.deployment)
}

// GetConfig retrieves the deployment configuration from the "config/config"
// document.
func (f *FirestoreProvider) GetConfig(ctx context.Context) (types.Config, int, error) {
	doc, err := f.deploymentDoc().Collection("config").Doc("config").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Config{}, 0, ErrConfigNotFound
		}
		return types.Config{}, 0, fmt.Errorf("failed to fetch config doc: %w", err)
	}

	// Read version if available (default 0)
	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "config doc missing json", slog.String("deployment", f.deployment))
		return types.Config{}, 0, fmt.Errorf("config document missing 'json' field: %w", err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "config doc json not string", slog.String("deployment", f.deployment))
		return types.Config{}, 0, fmt.Errorf("config 'json' field is not a string")
	}

	var c types.Config
	if err := json.Unmarshal([]byte(jsonStr), &c); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal config json", slog.String("deployment", f.deployment), slog.Any("error", err))
		return types.Config{}, 0, fmt.Errorf("failed to unmarshal config json: %w", err)
	}
	return c, version, nil
}

// SetConfig saves the deployment configuration to the "config/config"
// document. It stores the config as a JSON string for portability.
func (f *FirestoreProvider) SetConfig(ctx context.Context, cfg types.Config, version int) error {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	_, err = f.deploymentDoc().Collection("config").Doc("config").Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": version,
	})
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// UpsertOutputState writes the latest state of an output to the "outputs"
// collection as a JSON blob keyed by the output ID.
func (f *FirestoreProvider) UpsertOutputState(ctx context.Context, st types.OutputState) error {
	if st.ID == "" {
		return fmt.Errorf("output state missing id")
	}
	jsonBytes, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal output state %s: %w", st.ID, err)
	}

	_, err = f.deploymentDoc().Collection("outputs").Doc(string(st.ID)).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"updatedAt": st.UpdatedAt,
		"version":   st.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert output state %s: %w", st.ID, err)
	}
	return nil
}

// GetOutputState retrieves the last persisted state of an output, or nil when
// none was stored.
func (f *FirestoreProvider) GetOutputState(ctx context.Context, id types.OutputID) (*types.OutputState, error) {
	doc, err := f.deploymentDoc().Collection("outputs").Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch output state %s: %w", id, err)
	}

	st, err := decodeOutputDoc(ctx, doc)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ListOutputStates retrieves every persisted output state for the deployment.
// Malformed documents are skipped.
func (f *FirestoreProvider) ListOutputStates(ctx context.Context) ([]types.OutputState, error) {
	iter := f.deploymentDoc().Collection("outputs").
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var states []types.OutputState
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating output states: %w", err)
		}

		st, err := decodeOutputDoc(ctx, doc)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping malformed output state doc",
				slog.String("docID", doc.Ref.ID), slog.Any("error", err))
			continue
		}
		states = append(states, *st)
	}
	return states, nil
}

// DeleteOutputState removes the persisted state of an output. Deleting an
// output that was never stored is not an error.
func (f *FirestoreProvider) DeleteOutputState(ctx context.Context, id types.OutputID) error {
	_, err := f.deploymentDoc().Collection("outputs").Doc(string(id)).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete output state %s: %w", id, err)
	}
	return nil
}

func decodeOutputDoc(ctx context.Context, doc *firestore.DocumentSnapshot) (*types.OutputState, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		return nil, fmt.Errorf("output state doc %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return nil, fmt.Errorf("output state doc %s 'json' field is not string", doc.Ref.ID)
	}

	var st types.OutputState
	if err := json.Unmarshal([]byte(jsonStr), &st); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal output state",
			slog.String("docID", doc.Ref.ID), slog.Any("error", err))
		return nil, fmt.Errorf("failed to unmarshal output state (id=%s): %w", doc.Ref.ID, err)
	}
	if st.ID == "" {
		st.ID = types.OutputID(doc.Ref.ID)
	}
	return &st, nil
}
