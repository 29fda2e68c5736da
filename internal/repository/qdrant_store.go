package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const scrollPageSize = 256

// CollectionSchema describes one collection: its named vectors with their
// dimensions and the payload fields that get an index.
type CollectionSchema struct {
	Name           string
	Vectors        map[string]int
	IntegerIndexes []string
	KeywordIndexes []string
}

func (s *CollectionSchema) isVector(field string) bool {
	_, ok := s.Vectors[field]
	return ok
}

// splitFields separates requested output fields into payload keys and
// vector names.
func (s *CollectionSchema) splitFields(fields []string) (payload, vectors []string) {
	for _, f := range fields {
		if s.isVector(f) {
			vectors = append(vectors, f)
		} else {
			payload = append(payload, f)
		}
	}
	return payload, vectors
}

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host    string
	Port    int
	APIKey  string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS  bool   // Explicitly enable TLS without API Key
	Metric  string // IP, COSINE or L2; applied when collections are created
	Schemas []CollectionSchema
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantStore implements VectorStore on Qdrant's gRPC API. One instance owns
// one connection and is shared by every request for the life of the process.
type QdrantStore struct {
	conn          *grpc.ClientConn
	pointsClient  pb.PointsClient
	collectClient pb.CollectionsClient
	distance      pb.Distance
	schemas       map[string]*CollectionSchema
}

// NewQdrantStore dials Qdrant. Supports both local Qdrant (insecure) and
// Qdrant Cloud (TLS + API Key).
func NewQdrantStore(cfg *QdrantConnectionConfig) (*QdrantStore, error) {
	distance, err := distanceFor(cfg.Metric)
	if err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	schemas := make(map[string]*CollectionSchema, len(cfg.Schemas))
	for i := range cfg.Schemas {
		schemas[cfg.Schemas[i].Name] = &cfg.Schemas[i]
	}

	return &QdrantStore{
		conn:          conn,
		pointsClient:  pb.NewPointsClient(conn),
		collectClient: pb.NewCollectionsClient(conn),
		distance:      distance,
		schemas:       schemas,
	}, nil
}

// Close closes the gRPC connection
func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

// Ping checks that the vector store answers health checks.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := pb.NewQdrantClient(s.conn).HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("%w: health check: %v", domain.ErrVectorStoreUnavailable, err)
	}
	return nil
}

func distanceFor(metric string) (pb.Distance, error) {
	switch strings.ToUpper(metric) {
	case "", "IP":
		return pb.Distance_Dot, nil
	case "COSINE":
		return pb.Distance_Cosine, nil
	case "L2":
		return pb.Distance_Euclid, nil
	default:
		return pb.Distance_UnknownDistance, fmt.Errorf("unsupported metric %q", metric)
	}
}

func (s *QdrantStore) schema(collection string) (*CollectionSchema, error) {
	schema, ok := s.schemas[collection]
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", domain.ErrVectorStoreUnavailable, collection)
	}
	return schema, nil
}

// EnsureCollections creates every configured collection that does not exist
// yet, together with its payload indexes.
func (s *QdrantStore) EnsureCollections(ctx context.Context) error {
	for _, schema := range s.schemas {
		exists, err := s.collectClient.CollectionExists(ctx, &pb.CollectionExistsRequest{
			CollectionName: schema.Name,
		})
		if err != nil {
			return fmt.Errorf("failed to check collection %s: %w", schema.Name, err)
		}
		if exists.GetResult().GetExists() {
			continue
		}

		params := make(map[string]*pb.VectorParams, len(schema.Vectors))
		for name, dim := range schema.Vectors {
			params[name] = &pb.VectorParams{Size: uint64(dim), Distance: s.distance}
		}
		_, err = s.collectClient.Create(ctx, &pb.CreateCollection{
			CollectionName: schema.Name,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_ParamsMap{
					ParamsMap: &pb.VectorParamsMap{Map: params},
				},
			},
			HnswConfig: &pb.HnswConfigDiff{
				M:                 pb.PtrOf(uint64(16)),
				EfConstruct:       pb.PtrOf(uint64(128)),
				FullScanThreshold: pb.PtrOf(uint64(10000)),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", schema.Name, err)
		}

		if err := s.createIndexes(ctx, schema); err != nil {
			return err
		}
		logger.With(logger.Fields{logger.FieldCollection: schema.Name}).Info(ctx, "Created collection")
	}
	return nil
}

func (s *QdrantStore) createIndexes(ctx context.Context, schema *CollectionSchema) error {
	create := func(field string, fieldType pb.FieldType) error {
		_, err := s.pointsClient.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: schema.Name,
			Wait:           pb.PtrOf(true),
			FieldName:      field,
			FieldType:      pb.PtrOf(fieldType),
		})
		if err != nil {
			return fmt.Errorf("failed to index %s.%s: %w", schema.Name, field, err)
		}
		return nil
	}
	for _, f := range schema.IntegerIndexes {
		if err := create(f, pb.FieldType_FieldTypeInteger); err != nil {
			return err
		}
	}
	for _, f := range schema.KeywordIndexes {
		if err := create(f, pb.FieldType_FieldTypeKeyword); err != nil {
			return err
		}
	}
	return nil
}

// Search performs a similarity search on req.AnnsField. Results come back in
// the store's rank order.
func (s *QdrantStore) Search(ctx context.Context, req *SearchRequest) (*ResultSet, error) {
	schema, err := s.schema(req.Collection)
	if err != nil {
		return nil, err
	}
	dim, ok := schema.Vectors[req.AnnsField]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no vector field %q", domain.ErrVectorStoreUnavailable, req.Collection, req.AnnsField)
	}
	if len(req.Vector) != dim {
		return nil, fmt.Errorf("%w: %s.%s expects %d dimensions, got %d",
			domain.ErrVectorStoreUnavailable, req.Collection, req.AnnsField, dim, len(req.Vector))
	}
	if distance, err := distanceFor(req.Params.Metric); err != nil || distance != s.distance {
		return nil, fmt.Errorf("%w: metric %q does not match collection distance %s",
			domain.ErrVectorStoreUnavailable, req.Params.Metric, s.distance)
	}

	payloadFields, vectorFields := schema.splitFields(req.OutputFields)
	pbReq := &pb.SearchPoints{
		CollectionName: req.Collection,
		Vector:         req.Vector,
		VectorName:     pb.PtrOf(req.AnnsField),
		Limit:          uint64(req.TopK),
		Offset:         pb.PtrOf(uint64(req.Offset)),
		Filter:         req.Filter.toQdrant(),
		WithPayload:    payloadSelector(payloadFields),
		WithVectors:    vectorSelector(vectorFields),
	}
	if req.Params.NProbe > 0 {
		pbReq.Params = &pb.SearchParams{HnswEf: pb.PtrOf(uint64(req.Params.NProbe))}
	}

	resp, err := s.pointsClient.Search(ctx, pbReq)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search %s: %w", domain.ErrVectorStoreUnavailable, req.Collection, err)
	}

	rs := newEmptyResultSet(req.OutputFields)
	for _, point := range resp.GetResult() {
		appendPoint(rs, schema, point.GetId(), point.GetPayload(), point.GetVectors())
		rs.Scores = append(rs.Scores, roundScore(point.GetScore(), req.Params.RoundDecimal))
	}
	return rs, nil
}

// Query scrolls through every point matching req.Filter.
func (s *QdrantStore) Query(ctx context.Context, req *QueryRequest) (*ResultSet, error) {
	schema, err := s.schema(req.Collection)
	if err != nil {
		return nil, err
	}

	payloadFields, vectorFields := schema.splitFields(req.OutputFields)
	rs := newEmptyResultSet(req.OutputFields)

	var offset *pb.PointId
	for {
		resp, err := s.pointsClient.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: req.Collection,
			Filter:         req.Filter.toQdrant(),
			Offset:         offset,
			Limit:          pb.PtrOf(uint32(scrollPageSize)),
			WithPayload:    payloadSelector(payloadFields),
			WithVectors:    vectorSelector(vectorFields),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to query %s where %s: %w",
				domain.ErrVectorStoreUnavailable, req.Collection, req.Filter, err)
		}
		for _, point := range resp.GetResult() {
			appendPoint(rs, schema, point.GetId(), point.GetPayload(), point.GetVectors())
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}
	return rs, nil
}

// Insert upserts rows and waits for the write to be applied.
func (s *QdrantStore) Insert(ctx context.Context, collection string, rows []Row) error {
	schema, err := s.schema(collection)
	if err != nil {
		return err
	}

	points := make([]*pb.PointStruct, 0, len(rows))
	for i, row := range rows {
		vectors := make(map[string]*pb.Vector, len(row.Vectors))
		for name, vec := range row.Vectors {
			dim, ok := schema.Vectors[name]
			if !ok {
				return fmt.Errorf("%w: %s has no vector field %q", domain.ErrVectorStoreUnavailable, collection, name)
			}
			if len(vec) != dim {
				return fmt.Errorf("%w: row %d: %s.%s expects %d dimensions, got %d",
					domain.ErrVectorStoreUnavailable, i, collection, name, dim, len(vec))
			}
			vectors[name] = pb.NewVectorDense(vec)
		}

		payload, err := pb.TryValueMap(row.Fields)
		if err != nil {
			return fmt.Errorf("row %d: invalid payload: %w", i, err)
		}

		id := pb.NewIDUUID(uuid.New().String())
		if row.ID != 0 {
			id = pb.NewIDNum(row.ID)
		}
		points = append(points, &pb.PointStruct{
			Id:      id,
			Payload: payload,
			Vectors: pb.NewVectorsMap(vectors),
		})
	}

	_, err = s.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           pb.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to insert %d rows into %s: %w", domain.ErrVectorStoreUnavailable, len(rows), collection, err)
	}
	return nil
}

// Delete removes every point matching filter. An empty filter is rejected so
// a collection cannot be wiped by accident.
func (s *QdrantStore) Delete(ctx context.Context, collection string, filter Filter) error {
	if filter.IsZero() {
		return fmt.Errorf("%w: delete from %s requires a filter", domain.ErrVectorStoreUnavailable, collection)
	}
	if _, err := s.schema(collection); err != nil {
		return err
	}

	_, err := s.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           pb.PtrOf(true),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter.toQdrant()},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: failed to delete from %s where %s: %w", domain.ErrVectorStoreUnavailable, collection, filter, err)
	}
	return nil
}

func payloadSelector(fields []string) *pb.WithPayloadSelector {
	if len(fields) == 0 {
		return &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false},
		}
	}
	return &pb.WithPayloadSelector{
		SelectorOptions: &pb.WithPayloadSelector_Include{
			Include: &pb.PayloadIncludeSelector{Fields: fields},
		},
	}
}

func vectorSelector(names []string) *pb.WithVectorsSelector {
	if len(names) == 0 {
		return &pb.WithVectorsSelector{
			SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: false},
		}
	}
	return &pb.WithVectorsSelector{
		SelectorOptions: &pb.WithVectorsSelector_Include{
			Include: &pb.VectorsSelector{Names: names},
		},
	}
}

// appendPoint adds one point to every column of rs, keeping columns aligned.
// A field named "id" missing from the payload falls back to the point id.
func appendPoint(rs *ResultSet, schema *CollectionSchema, id *pb.PointId, payload map[string]*pb.Value, vectors *pb.VectorsOutput) {
	named := vectors.GetVectors().GetVectors()
	for i := range rs.Columns {
		col := &rs.Columns[i]
		if schema.isVector(col.Name) {
			col.Values = append(col.Values, denseData(named[col.Name]))
			continue
		}
		v, ok := payload[col.Name]
		if !ok && col.Name == "id" && id != nil {
			col.Values = append(col.Values, int64(id.GetNum()))
			continue
		}
		col.Values = append(col.Values, fromValue(v))
	}
}

func denseData(v *pb.VectorOutput) any {
	if v == nil {
		return nil
	}
	if dense := v.GetDense(); dense != nil {
		return dense.GetData()
	}
	//nolint:staticcheck // older servers only fill the deprecated field
	if data := v.GetData(); len(data) > 0 {
		return data
	}
	return nil
}

func fromValue(v *pb.Value) any {
	if v == nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}

func roundScore(score float32, decimals int) float32 {
	if decimals < 0 {
		return score
	}
	pow := math.Pow(10, float64(decimals))
	return float32(math.Round(float64(score)*pow) / pow)
}
