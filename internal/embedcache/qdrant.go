package embedcache

import (
	"context"
	"fmt"
	"sync"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// pointsAPI is the subset of pb.PointsClient used here.
type pointsAPI interface {
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient used here.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantStore persists spot embeddings in a Qdrant collection keyed by spot
// id. Points carry the embedding model name and the description fingerprint;
// a point written by another model or for another description is a miss.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	model       string

	ensureMu sync.Mutex
	ensured  bool
}

// NewQdrantStore connects to Qdrant's gRPC API at addr.
func NewQdrantStore(addr, collection, model string) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("embedcache: dial qdrant %s: %w", addr, err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		model:       model,
	}, nil
}

// Close closes the underlying gRPC connection.
func (q *QdrantStore) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// Name identifies the store in health reports.
func (q *QdrantStore) Name() string { return "qdrant" }

// Check lists collections to verify connectivity.
func (q *QdrantStore) Check(ctx context.Context) error {
	if _, err := q.collections.List(ctx, &pb.ListCollectionsRequest{}); err != nil {
		return fmt.Errorf("embedcache: qdrant unreachable: %w", err)
	}
	return nil
}

// ensureCollection creates the collection with the given dimensionality if it
// does not exist yet.
func (q *QdrantStore) ensureCollection(ctx context.Context, dims int) error {
	q.ensureMu.Lock()
	defer q.ensureMu.Unlock()
	if q.ensured {
		return nil
	}

	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("embedcache: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			q.ensured = true
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("embedcache: create collection %s: %w", q.collection, err)
	}
	q.ensured = true
	return nil
}

func pointID(spotID int64) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(spotID)}}
}

// Save upserts the vector for spotID.
func (q *QdrantStore) Save(ctx context.Context, spotID int64, fingerprint string, vector []float64) error {
	if spotID < 0 {
		return fmt.Errorf("embedcache: negative spot id %d", spotID)
	}
	if err := q.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	data := make([]float32, len(vector))
	for i, v := range vector {
		data[i] = float32(v)
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: pointID(spotID),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: data}},
			},
			Payload: map[string]*pb.Value{
				"spot_id":     {Kind: &pb.Value_IntegerValue{IntegerValue: spotID}},
				"model":       {Kind: &pb.Value_StringValue{StringValue: q.model}},
				"fingerprint": {Kind: &pb.Value_StringValue{StringValue: fingerprint}},
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("embedcache: upsert spot %d: %w", spotID, err)
	}
	return nil
}

// Load fetches the vector for spotID. A missing point, or one written by a
// different model or for a different fingerprint, reports ok=false.
func (q *QdrantStore) Load(ctx context.Context, spotID int64, fingerprint string) ([]float64, bool, error) {
	if spotID < 0 {
		return nil, false, nil
	}
	resp, err := q.points.Get(ctx, &pb.GetPoints{
		CollectionName: q.collection,
		Ids:            []*pb.PointId{pointID(spotID)},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	})
	if status.Code(err) == codes.NotFound {
		// Collection not created yet.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("embedcache: get spot %d: %w", spotID, err)
	}

	for _, p := range resp.GetResult() {
		payload := p.GetPayload()
		if payload["model"].GetStringValue() != q.model || payload["fingerprint"].GetStringValue() != fingerprint {
			continue
		}
		data := p.GetVectors().GetVector().GetData()
		if len(data) == 0 {
			continue
		}
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, true, nil
	}
	return nil, false, nil
}
