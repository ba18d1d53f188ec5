package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vyrodovalexey/avtenantd/internal/observability"
)

// MongoConfig holds Mongo driver settings.
type MongoConfig struct {
	URI            string
	MasterDatabase string
	ConnectTimeout time.Duration
}

// mongoDriver implements Driver on top of a shared Mongo client. Tenant
// isolation is one logical database per tenant inside the cluster.
type mongoDriver struct {
	client *mongo.Client
	master string
	logger observability.Logger
}

// NewMongoDriver connects to the cluster and returns a Driver.
func NewMongoDriver(ctx context.Context, cfg MongoConfig, logger observability.Logger) (Driver, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}
	if cfg.MasterDatabase == "" {
		return nil, fmt.Errorf("master database name is required")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logger.Info("connected to document store",
		observability.String("masterDatabase", cfg.MasterDatabase))

	return &mongoDriver{
		client: client,
		master: cfg.MasterDatabase,
		logger: logger,
	}, nil
}

// Master returns the master catalog handle.
func (d *mongoDriver) Master() Handle {
	return &mongoHandle{db: d.client.Database(d.master)}
}

// Open returns a handle to an existing named database.
func (d *mongoDriver) Open(_ context.Context, name string) (Handle, error) {
	return &mongoHandle{db: d.client.Database(name)}, nil
}

// Provision creates the baseline collections for a tenant database. Mongo
// materializes a database on first write, so the baseline insert doubles as
// creation.
func (d *mongoDriver) Provision(ctx context.Context, name string) (Handle, error) {
	db := d.client.Database(name)

	for _, coll := range TenantCollections {
		if err := db.CreateCollection(ctx, coll); err != nil {
			// Already-exists is fine when re-provisioning after a partial
			// failure.
			var cmdErr mongo.CommandError
			if errors.As(err, &cmdErr) && cmdErr.Code == 48 {
				continue
			}
			return nil, fmt.Errorf("failed to provision collection %s/%s: %w", name, coll, err)
		}
	}

	d.logger.Info("provisioned tenant store", observability.String("store", name))

	return &mongoHandle{db: db}, nil
}

// Teardown drops a tenant database.
func (d *mongoDriver) Teardown(ctx context.Context, name string) error {
	if err := d.client.Database(name).Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", name, err)
	}
	d.logger.Info("dropped tenant store", observability.String("store", name))
	return nil
}

// Ping verifies the cluster connection.
func (d *mongoDriver) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases all connections.
func (d *mongoDriver) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// mongoHandle implements Handle.
type mongoHandle struct {
	db *mongo.Database
}

func (h *mongoHandle) Name() string {
	return h.db.Name()
}

func (h *mongoHandle) Collection(name string) Collection {
	return &mongoCollection{coll: h.db.Collection(name)}
}

func (h *mongoHandle) Ping(ctx context.Context) error {
	if err := h.db.Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// mongoCollection implements Collection.
type mongoCollection struct {
	coll *mongo.Collection
}

func toBSON(f Filter) bson.M {
	m := bson.M{}
	for k, v := range f {
		m[k] = v
	}
	return m
}

func (c *mongoCollection) FindOne(ctx context.Context, filter Filter, out interface{}) error {
	err := c.coll.FindOne(ctx, toBSON(filter)).Decode(out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("find one failed: %w", err)
	}
	return nil
}

func (c *mongoCollection) Find(ctx context.Context, filter Filter, out interface{}, opts *FindOptions) error {
	findOpts := options.Find()
	if opts != nil {
		if opts.Skip > 0 {
			findOpts.SetSkip(opts.Skip)
		}
		if opts.Limit > 0 {
			findOpts.SetLimit(opts.Limit)
		}
		if opts.SortField != "" {
			findOpts.SetSort(bson.D{{Key: opts.SortField, Value: 1}})
		}
	}

	cursor, err := c.coll.Find(ctx, toBSON(filter), findOpts)
	if err != nil {
		return fmt.Errorf("find failed: %w", err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("cursor decode failed: %w", err)
	}
	return nil
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc interface{}) error {
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter Filter, update Update) (bool, error) {
	res, err := c.coll.UpdateOne(ctx, toBSON(filter), bson.M{"$set": bson.M(update)})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, ErrDuplicateKey
		}
		return false, fmt.Errorf("update failed: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter Filter) (bool, error) {
	res, err := c.coll.DeleteOne(ctx, toBSON(filter))
	if err != nil {
		return false, fmt.Errorf("delete failed: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (c *mongoCollection) Count(ctx context.Context, filter Filter) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, toBSON(filter))
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

func (c *mongoCollection) EnsureIndex(ctx context.Context, fields []string, unique bool) error {
	keys := bson.D{}
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}

	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(unique),
	})
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}
