package vectorindex

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// namespaceSeparator joins the index name and a namespace into a
// collection name. One Qdrant collection backs each namespace.
const namespaceSeparator = "__"

// QdrantConfig holds configuration for the Qdrant-backed index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334 (gRPC), not 6333 (HTTP)
	Port int

	// IndexName is the logical index name; it prefixes every
	// namespace collection.
	IndexName string

	// Metric is the similarity metric: cosine, euclidean or dotproduct.
	// Default: cosine
	Metric string

	// UseTLS enables TLS encryption for gRPC connection.
	UseTLS bool

	// APIKey is the optional API key for authentication.
	APIKey string

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB (to handle large documents)
	MaxMessageSize int

	// RequestTimeout is the default timeout for individual requests.
	// Default: 30 seconds
	RequestTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Metric == "" {
		c.Metric = "cosine"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.IndexName == "" || !namespacePattern.MatchString(c.IndexName) {
		return fmt.Errorf("%w: invalid index name %q", ErrInvalidConfig, c.IndexName)
	}
	if _, err := distanceFor(c.Metric); err != nil {
		return err
	}
	return nil
}

// distanceFor maps a metric name to the Qdrant distance enum.
func distanceFor(metric string) (qdrant.Distance, error) {
	switch strings.ToLower(metric) {
	case "cosine":
		return qdrant.Distance_Cosine, nil
	case "euclidean":
		return qdrant.Distance_Euclid, nil
	case "dotproduct":
		return qdrant.Distance_Dot, nil
	default:
		return 0, fmt.Errorf("%w: unknown metric %q", ErrInvalidConfig, metric)
	}
}

// QdrantIndex is the Qdrant gRPC implementation of Index.
//
// Each namespace maps to its own collection named
// "<index>__<namespace>"; the empty namespace maps to the bare index
// collection. Collections for new namespaces are created lazily on
// first upsert with the dimension fixed by EnsureIndex.
type QdrantIndex struct {
	client   *qdrant.Client
	config   QdrantConfig
	distance qdrant.Distance
	logger   *logging.Logger

	mu        sync.Mutex
	dimension int
}

// NewQdrantIndex creates a Qdrant-backed vector index.
func NewQdrantIndex(config QdrantConfig, logger *logging.Logger) (*QdrantIndex, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	distance, err := distanceFor(config.Metric)
	if err != nil {
		return nil, err
	}

	qdrantConfig := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	}
	if !config.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	return &QdrantIndex{
		client:   client,
		config:   config,
		distance: distance,
		logger:   logger.Named("qdrant"),
	}, nil
}

// collectionFor returns the collection name backing a namespace.
func (q *QdrantIndex) collectionFor(namespace string) string {
	if namespace == "" {
		return q.config.IndexName
	}
	return q.config.IndexName + namespaceSeparator + namespace
}

// namespaceFor is the inverse of collectionFor. The second return is
// false for collections outside this index.
func (q *QdrantIndex) namespaceFor(collection string) (string, bool) {
	if collection == q.config.IndexName {
		return "", true
	}
	prefix := q.config.IndexName + namespaceSeparator
	if strings.HasPrefix(collection, prefix) {
		return strings.TrimPrefix(collection, prefix), true
	}
	return "", false
}

// EnsureIndex creates the base collection if absent, verifies the
// dimension of every existing namespace collection, and fixes the
// dimension used for lazily created namespaces.
func (q *QdrantIndex) EnsureIndex(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dimension)
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return wrapQdrantErr("listing collections", err)
	}

	found := false
	for _, coll := range collections {
		if _, ok := q.namespaceFor(coll); !ok {
			continue
		}
		info, err := q.client.GetCollectionInfo(ctx, coll)
		if err != nil {
			return wrapQdrantErr("inspecting collection "+coll, err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != 0 && int(size) != dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, want %d",
				ErrDimensionMismatch, coll, size, dimension)
		}
		if coll == q.config.IndexName {
			found = true
		}
	}

	if !found {
		if err := q.createCollection(ctx, q.config.IndexName, dimension); err != nil {
			return err
		}
	}

	q.mu.Lock()
	q.dimension = dimension
	q.mu.Unlock()

	q.logger.Info(ctx, "index ready",
		zap.String("index", q.config.IndexName),
		zap.Int("dimension", dimension),
		zap.String("metric", q.config.Metric),
	)
	return nil
}

func (q *QdrantIndex) createCollection(ctx context.Context, name string, dimension int) error {
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: q.distance,
		}),
	})
	if err != nil {
		// A concurrent creator winning the race is fine.
		if st, ok := status.FromError(err); ok && st.Code() == codes.AlreadyExists {
			return nil
		}
		return wrapQdrantErr("creating collection "+name, err)
	}
	return nil
}

// ensureNamespace creates the namespace collection if missing.
func (q *QdrantIndex) ensureNamespace(ctx context.Context, namespace string) (string, error) {
	q.mu.Lock()
	dimension := q.dimension
	q.mu.Unlock()
	if dimension == 0 {
		return "", ErrNotReady
	}

	coll := q.collectionFor(namespace)
	_, err := q.client.GetCollectionInfo(ctx, coll)
	if err == nil {
		return coll, nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != codes.NotFound {
		return "", wrapQdrantErr("inspecting collection "+coll, err)
	}
	if err := q.createCollection(ctx, coll, dimension); err != nil {
		return "", err
	}
	return coll, nil
}

// Upsert inserts or overwrites chunk vectors, splitting large batches.
func (q *QdrantIndex) Upsert(ctx context.Context, namespace string, chunks []Chunk) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	coll, err := q.ensureNamespace(ctx, namespace)
	if err != nil {
		return err
	}

	for begin := 0; begin < len(chunks); begin += UpsertBatchSize {
		end := begin + UpsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		points := make([]*qdrant.PointStruct, 0, end-begin)
		for _, chunk := range chunks[begin:end] {
			points = append(points, toQdrantPoint(chunk))
		}
		if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: coll,
			Points:         points,
		}); err != nil {
			return wrapQdrantErr(fmt.Sprintf("upserting batch at offset %d", begin), err)
		}
	}

	q.logger.Debug(ctx, "upserted chunks",
		zap.String("namespace", namespace),
		zap.Int("count", len(chunks)),
	)
	return nil
}

// Query returns up to k nearest neighbors from the namespace.
func (q *QdrantIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]ScoredChunk, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidConfig, k)
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	coll := q.collectionFor(namespace)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: coll,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		// An absent namespace behaves like an empty one.
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return []ScoredChunk{}, nil
		}
		return nil, wrapQdrantErr("querying "+coll, err)
	}

	chunks := make([]ScoredChunk, 0, len(results))
	for _, point := range results {
		chunks = append(chunks, fromQdrantScoredPoint(point))
	}
	return chunks, nil
}

// Stats returns vector counts for a namespace or the whole index.
func (q *QdrantIndex) Stats(ctx context.Context, namespace string) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	if namespace != "" {
		if err := ValidateNamespace(namespace); err != nil {
			return nil, err
		}
		count, err := q.collectionCount(ctx, q.collectionFor(namespace))
		if err != nil {
			return nil, err
		}
		return &Stats{TotalVectors: count}, nil
	}

	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return nil, wrapQdrantErr("listing collections", err)
	}

	stats := &Stats{Namespaces: make(map[string]int)}
	for _, coll := range collections {
		ns, ok := q.namespaceFor(coll)
		if !ok {
			continue
		}
		count, err := q.collectionCount(ctx, coll)
		if err != nil {
			return nil, err
		}
		stats.Namespaces[ns] = count
		stats.TotalVectors += count
	}
	return stats, nil
}

func (q *QdrantIndex) collectionCount(ctx context.Context, coll string) (int, error) {
	info, err := q.client.GetCollectionInfo(ctx, coll)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return 0, nil
		}
		return 0, wrapQdrantErr("inspecting collection "+coll, err)
	}
	if info.PointsCount != nil {
		return int(*info.PointsCount), nil
	}
	return 0, nil
}

// DeleteByDocument removes all vectors tagged with the document ID.
func (q *QdrantIndex) DeleteByDocument(ctx context.Context, namespace, documentID string) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if documentID == "" {
		return fmt.Errorf("%w: document ID required", ErrInvalidConfig)
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	coll := q.collectionFor(namespace)
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: MetaDocumentID,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: documentID},
					},
				},
			},
		}},
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: coll,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil
		}
		return wrapQdrantErr("deleting document vectors from "+coll, err)
	}
	return nil
}

// DeleteIndex removes every collection belonging to this index.
func (q *QdrantIndex) DeleteIndex(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return wrapQdrantErr("listing collections", err)
	}
	for _, coll := range collections {
		if _, ok := q.namespaceFor(coll); !ok {
			continue
		}
		if err := q.client.DeleteCollection(ctx, coll); err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				continue
			}
			return wrapQdrantErr("deleting collection "+coll, err)
		}
	}
	return nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// wrapQdrantErr wraps a backend error, marking transient gRPC codes as
// ErrUnavailable so callers can retry idempotent operations.
func wrapQdrantErr(op string, err error) error {
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Helper conversion functions

func toQdrantPoint(c Chunk) *qdrant.PointStruct {
	payload := make(map[string]*qdrant.Value, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		payload[k] = toQdrantValue(v)
	}
	payload["text"] = toQdrantValue(c.Text)

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(c.ID),
		Vectors: qdrant.NewVectors(c.Vector...),
		Payload: payload,
	}
}

func toQdrantValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func fromQdrantScoredPoint(p *qdrant.ScoredPoint) ScoredChunk {
	metadata := make(map[string]interface{})
	text := ""
	for k, v := range p.Payload {
		if k == "text" {
			text, _ = fromQdrantValue(v).(string)
			continue
		}
		metadata[k] = fromQdrantValue(v)
	}

	return ScoredChunk{
		Chunk: Chunk{
			ID:       pointIDString(p.Id),
			Text:     text,
			Metadata: metadata,
		},
		Score: p.Score,
	}
}

func fromQdrantValue(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	if num := id.GetNum(); num != 0 {
		return fmt.Sprintf("%d", num)
	}
	return ""
}

// Ensure QdrantIndex implements Index.
var _ Index = (*QdrantIndex)(nil)
