package chroma

import (
	"context"
	"fmt"
	"os"

	"pulse-backend/pkg/config"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	log "github.com/sirupsen/logrus"
)

const (
	CollectionName = "content"
	// Embedding models have token limits.
	maxDocumentLength = 10000
)

// Document is one embedded text. Metadata values must be strings, numbers or bools.
type Document struct {
	ID       string
	UserID   string
	Text     string
	Metadata map[string]interface{}
}

type ChromaClient struct {
	client     chroma.Client
	embedFunc  *gemini.GeminiEmbeddingFunction
	collection chroma.Collection
}

func NewChromaClient(cfg *config.Config) (*ChromaClient, error) {
	if cfg.ChromaAPIKey == "" {
		return nil, fmt.Errorf("CHROMA_API_KEY is required")
	}

	if cfg.GeminiApiKey != "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiApiKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	options := []chroma.ClientOption{
		chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
		chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
	}
	switch {
	case cfg.ChromaDatabase != "" && cfg.ChromaTenant != "":
		options = append(options, chroma.WithDatabaseAndTenant(cfg.ChromaDatabase, cfg.ChromaTenant))
	case cfg.ChromaTenant != "":
		options = append(options, chroma.WithTenant(cfg.ChromaTenant))
	}
	client, err := chroma.NewHTTPClient(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		context.Background(),
		CollectionName,
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Infof("[Chroma] Initialized client with collection: %s", CollectionName)

	return &ChromaClient{
		client:     client,
		embedFunc:  embedFunc,
		collection: collection,
	}, nil
}

// Upsert embeds docs, replacing any document with the same id.
func (c *ChromaClient) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]chroma.DocumentID, 0, len(docs))
	texts := make([]string, 0, len(docs))
	metadatas := make([]chroma.DocumentMetadata, 0, len(docs))
	for _, doc := range docs {
		fields := map[string]interface{}{"user_id": doc.UserID}
		for k, v := range doc.Metadata {
			fields[k] = v
		}
		metadata, err := chroma.NewDocumentMetadataFromMap(fields)
		if err != nil {
			return fmt.Errorf("failed to create metadata for %s: %w", doc.ID, err)
		}

		text := doc.Text
		if len(text) > maxDocumentLength {
			text = text[:maxDocumentLength]
		}
		ids = append(ids, chroma.DocumentID(doc.ID))
		texts = append(texts, text)
		metadatas = append(metadatas, metadata)
	}

	err := c.collection.Upsert(
		ctx,
		chroma.WithIDs(ids...),
		chroma.WithMetadatas(metadatas...),
		chroma.WithTexts(texts...),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %d embeddings: %w", len(docs), err)
	}
	return nil
}

// Search returns ids of the user's documents nearest to query, closest first.
func (c *ChromaClient) Search(ctx context.Context, userID, query string, limit int) ([]string, error) {
	results, err := c.collection.Query(
		ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(limit),
		chroma.WithWhereQuery(chroma.EqString("user_id", userID)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	if results == nil || results.CountGroups() == 0 {
		return []string{}, nil
	}

	idGroups := results.GetIDGroups()
	if len(idGroups) == 0 {
		return []string{}, nil
	}
	ids := make([]string, 0, len(idGroups[0]))
	for _, id := range idGroups[0] {
		ids = append(ids, string(id))
	}
	log.WithFields(log.Fields{"user_id": userID, "results": len(ids)}).Debug("[Chroma] Semantic search")
	return ids, nil
}

func (c *ChromaClient) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	docIDs := make([]chroma.DocumentID, 0, len(ids))
	for _, id := range ids {
		docIDs = append(docIDs, chroma.DocumentID(id))
	}
	if err := c.collection.Delete(ctx, chroma.WithIDsDelete(docIDs...)); err != nil {
		return fmt.Errorf("failed to delete %d embeddings: %w", len(ids), err)
	}
	return nil
}
