package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/user/medrecord-proxy/internal/domain"
)

// Dispatcher executes the closed operation set against a tenant partition.
// This is the injection boundary: operation names are normalized and matched
// against the allowlist here as well, and every payload is sanitized before
// it reaches the driver, regardless of what earlier layers did.
type Dispatcher struct {
	router *PartitionRouter
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the partition router.
func NewDispatcher(router *PartitionRouter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{router: router, logger: logger}
}

// Execute runs one sanitized operation inside the tenant's partition.
func (d *Dispatcher) Execute(ctx context.Context, tenantID, collection string, req *domain.OperationRequest) (*domain.OperationResult, error) {
	opName := domain.NormalizeOperation(req.Operation)
	if !domain.IsSupportedOperation(opName) {
		return nil, &domain.UnsupportedOperationError{Operation: req.Operation}
	}
	if collection == "" {
		return nil, &domain.ValidationError{Msg: "collection name is required"}
	}
	req.Operation = opName
	req.Sanitize()

	db, err := d.router.Route(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	coll := db.Collection(collection)

	result := &domain.OperationResult{Operation: opName}
	switch opName {
	case domain.OpFind:
		result.Data, err = d.find(ctx, coll, req)
	case domain.OpFindOne:
		result.Data, err = d.findOne(ctx, coll, req)
	case domain.OpInsertOne:
		result.Data, err = d.insertOne(ctx, coll, req)
	case domain.OpInsertMany:
		result.Data, err = d.insertMany(ctx, coll, req)
	case domain.OpUpdateOne:
		result.Data, err = d.update(ctx, coll, req, false)
	case domain.OpUpdateMany:
		result.Data, err = d.update(ctx, coll, req, true)
	case domain.OpDeleteOne:
		result.Data, result.DeletedCount, err = d.delete(ctx, coll, req, false)
	case domain.OpDeleteMany:
		result.Data, result.DeletedCount, err = d.delete(ctx, coll, req, true)
	case domain.OpCount:
		result.Data, err = d.count(ctx, coll, req)
	case domain.OpFindOneAndUpdate:
		result.Data, err = d.findOneAndUpdate(ctx, coll, req)
	case domain.OpFindOneAndReplace:
		result.Data, err = d.findOneAndReplace(ctx, coll, req)
	case domain.OpFindOneAndDelete:
		result.Data, result.DeletedCount, err = d.findOneAndDelete(ctx, coll, req)
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (d *Dispatcher) find(ctx context.Context, coll *mongo.Collection, req *domain.OperationRequest) (any, error) {
	opts := options.Find().SetLimit(req.Limit)
	if req.Skip > 0 {
		opts = opts.SetSkip(req.Skip)
	}
	if len(req.Sort) > 0 {
		opts = opts.SetSort(sortDoc(req.Sort))
	}

	cursor, err := coll.Find(ctx, d.filter(req), opts)
	if err != nil {
		return nil, d.wrap("find", err)
	}
	defer cursor.Close(ctx)

	docs := []bson.M{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, d.wrap("find", err)
	}
	return docs, nil
}

func (d *Dispatcher) findOne(ctx context.Context, coll *mongo.Collection, req *domain.OperationRequest) (any, error) {
	var doc bson.M
	err := coll.FindOne(ctx, d.filter(req)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, d.wrap("findOne", err)
	}
	return doc, nil
}

func (d *Dispatcher) insertOne(ctx context.Context, coll *mongo.Collection, req *domain.OperationRequest) (any, error) {
	if req.Document == nil {
		return nil, &domain.ValidationError{Msg: "insertOne requires a document"}
	}

	res, err := coll.InsertOne(ctx, bson.M(req.Document))
	if err != nil {
		return nil, d.wrap("insertOne", err)
	}
	return bson.M{
		"insertedId":   res.InsertedID,
		"acknowledged": res.Acknowledged,
	}, nil
}

func (d *Dispatcher) insertMany(ctx context.Context, coll *mongo.Collection, req *domain.OperationRequest) (any, error) {
	if len(req.Documents) == 0 {
		return nil, &domain.ValidationError{Msg: "insertMany requires documents"}
	}

	docs := make([]any, len(req.Documents))
	for i, doc := range req.Documents {
		docs[i] = bson.M(doc)
	}

	res, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return nil, d.wrap("insertMany", err)
	}
	return bson.M{
		"insertedIds":   res.InsertedIDs,
		"insertedCount": len(res.InsertedIDs),
		"acknowledged":  res.Acknowledged,
	}, nil
}

func (d *Dispatcher) update(ctx context.Context, coll *mongo.Collection, req *domain.OperationRequest, many bool) (any, error) {
	update, err := updateDoc(req)
	if err != nil {
		return nil, err
	}

	var res *mongo.UpdateResult
	if many {
		res, err = coll.UpdateMany(ctx, d.filter(req), update)
	} else {
		res, err = coll.UpdateOne(ctx, d.filter(req), update)
	}
	if err != nil {
		return nil, d.wrap("update", err)
	}
	return bson.M{
		"matchedCount":  res.MatchedCount,
		"modifiedCount": res.ModifiedCount,
		"acknowledged":  res.Acknowledged,
	}, nil
}

func (d *Dispatcher) delete(ctx context.Context, coll *mongo.Collection, req *domain.OperationRequest, many bool) (any, int64, error) {
	var (
		res *mongo.DeleteResult
		err error
	)
	if many {
		res, err = coll.DeleteMany(ctx, d.filter(req))
	} else {
		res, err = coll.DeleteOne(ctx, d.filter(req))
	}
	if err != nil {
		return nil, 0, d.wrap("delete", err)
	}
	return bson.M{
		"deletedCount": res.DeletedCount,
		"acknowledged": res.Acknowledged,
	}, res.DeletedCount, nil
}

func (d *Dispatcher) count(ctx context.Context, coll *mongo.Collection, req *domain.OperationRequest) (any, error) {
	count, err := coll.CountDocuments(ctx, d.filter(req), options.Count().SetLimit(req.Limit))
	if err != nil {
		return nil, d.wrap("count", err)
	}
	return count, nil
}

func (d *Dispatcher) findOneAndUpdate(ctx context.Context, coll *mongo.Collection, req *domain.OperationRequest) (any, error) {
	update, err := updateDoc(req)
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(returnDocument(req))
	var doc bson.M
	err = coll.FindOneAndUpdate(ctx, d.filter(req), update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, d.wrap("findOneAndUpdate", err)
	}
	return doc, nil
}

func (d *Dispatcher) findOneAndReplace(ctx context.Context, coll *mongo.Collection, req *domain.OperationRequest) (any, error) {
	if req.Document == nil {
		return nil, &domain.ValidationError{Msg: "findOneAndReplace requires a replacement document"}
	}

	opts := options.FindOneAndReplace().SetReturnDocument(returnDocument(req))
	var doc bson.M
	err := coll.FindOneAndReplace(ctx, d.filter(req), bson.M(req.Document), opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, d.wrap("findOneAndReplace", err)
	}
	return doc, nil
}

func (d *Dispatcher) findOneAndDelete(ctx context.Context, coll *mongo.Collection, req *domain.OperationRequest) (any, int64, error) {
	var doc bson.M
	err := coll.FindOneAndDelete(ctx, d.filter(req)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, 0, nil
		}
		return nil, 0, d.wrap("findOneAndDelete", err)
	}
	return doc, 1, nil
}

// filter converts the sanitized request filter to a driver document, folding
// an explicit id into _id.
func (d *Dispatcher) filter(req *domain.OperationRequest) bson.M {
	filter := bson.M{}
	for key, value := range req.Filter {
		filter[key] = value
	}
	if req.ID != "" {
		if oid, err := bson.ObjectIDFromHex(req.ID); err == nil {
			filter["_id"] = oid
		} else {
			filter["_id"] = req.ID
		}
	}
	return filter
}

func (d *Dispatcher) wrap(op string, err error) error {
	d.logger.Error("storage operation failed", "operation", op, "error", err)
	return &domain.InfrastructureError{Op: "mongo." + op, Err: err}
}

// updateDoc wraps an operator-free update in $set so callers can send plain
// field maps.
func updateDoc(req *domain.OperationRequest) (bson.M, error) {
	if req.Update == nil {
		return nil, &domain.ValidationError{Msg: "update document is required"}
	}

	hasOperator := false
	for key := range req.Update {
		if len(key) > 0 && key[0] == '$' {
			hasOperator = true
			break
		}
	}
	if hasOperator {
		return bson.M(req.Update), nil
	}
	return bson.M{"$set": bson.M(req.Update)}, nil
}

func returnDocument(req *domain.OperationRequest) options.ReturnDocument {
	if req.ReturnDocument == domain.ReturnBefore {
		return options.Before
	}
	return options.After
}

func sortDoc(sort map[string]int) bson.D {
	doc := make(bson.D, 0, len(sort))
	for field, dir := range sort {
		if dir >= 0 {
			dir = 1
		} else {
			dir = -1
		}
		doc = append(doc, bson.E{Key: field, Value: dir})
	}
	return doc
}

var _ domain.DataStore = (*Dispatcher)(nil)

// Connect establishes the shared client used by the router.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}
