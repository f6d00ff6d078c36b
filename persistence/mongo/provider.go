// Package mongo persists sessions and retained messages in MongoDB
package mongo

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/VolantMQ/mqcore/configuration"
	"github.com/VolantMQ/mqcore/persistence/types"
)

const (
	sessionsCollection = "sessions"
	retainedCollection = "retained"
	defaultTimeout     = 5 * time.Second
)

type impl struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
	log     *zap.SugaredLogger
	done    chan struct{}

	s sessions
	r retained
}

// New connects to MongoDB and prepares collections
func New(config *persistenceTypes.MongoConfig) (persistenceTypes.Provider, error) {
	if config == nil || config.URI == "" || config.Database == "" {
		return nil, persistenceTypes.ErrInvalidArgs
	}

	p := &impl{
		timeout: config.Timeout,
		log:     configuration.GetLogger().Named("persistence").Named("mongo"),
		done:    make(chan struct{}),
	}

	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}

	opts := options.Client().
		ApplyURI(config.URI).
		SetAppName("mqcore").
		SetConnectTimeout(p.timeout)

	opts.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				p.log.Debugw("connection created", "address", evt.Address)
			case event.ConnectionClosed:
				p.log.Debugw("connection closed", "address", evt.Address, "reason", evt.Reason)
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "connect")
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, pkgerrors.Wrap(err, "ping")
	}

	if err = p.attach(ctx, client, config.Database); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	p.log.Infow("connected", "database", config.Database)

	return p, nil
}

// attach binds connected client to database and ensures indexes
func (p *impl) attach(ctx context.Context, client *mongo.Client, database string) error {
	p.client = client
	p.db = client.Database(database)

	p.s = sessions{p: p, coll: p.db.Collection(sessionsCollection)}
	p.r = retained{p: p, coll: p.db.Collection(retainedCollection)}

	_, err := p.r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "topic", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("retained_topic_unique"),
	})

	return pkgerrors.Wrap(err, "create index")
}

func (p *impl) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *impl) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), p.timeout)
}

// Sessions
func (p *impl) Sessions() (persistenceTypes.Sessions, error) {
	if p.closed() {
		return nil, persistenceTypes.ErrNotOpen
	}

	return &p.s, nil
}

// Retained
func (p *impl) Retained() (persistenceTypes.Retained, error) {
	if p.closed() {
		return nil, persistenceTypes.ErrNotOpen
	}

	return &p.r, nil
}

// Ping database
func (p *impl) Ping(ctx context.Context) error {
	if p.closed() {
		return persistenceTypes.ErrNotOpen
	}

	return p.client.Ping(ctx, nil)
}

// Shutdown disconnects client
func (p *impl) Shutdown() error {
	select {
	case <-p.done:
		return persistenceTypes.ErrNotOpen
	default:
		close(p.done)
	}

	ctx, cancel := p.ctx()
	defer cancel()

	return p.client.Disconnect(ctx)
}

type sessions struct {
	p    *impl
	coll *mongo.Collection
}

func (s *sessions) Load(fn func(*persistenceTypes.SessionState) error) error {
	if s.p.closed() {
		return persistenceTypes.ErrNotOpen
	}

	ctx, cancel := s.p.ctx()
	defer cancel()

	cur, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return pkgerrors.Wrap(err, "find sessions")
	}
	defer cur.Close(ctx) // nolint: errcheck

	for cur.Next(ctx) {
		st := &persistenceTypes.SessionState{}
		if err = cur.Decode(st); err != nil {
			return pkgerrors.Wrap(err, "decode session")
		}

		if err = fn(st); err != nil {
			return err
		}
	}

	return cur.Err()
}

func (s *sessions) Get(id string) (*persistenceTypes.SessionState, error) {
	if s.p.closed() {
		return nil, persistenceTypes.ErrNotOpen
	}

	ctx, cancel := s.p.ctx()
	defer cancel()

	st := &persistenceTypes.SessionState{}
	if err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(st); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, persistenceTypes.ErrNotFound
		}
		return nil, pkgerrors.Wrap(err, "find session")
	}

	return st, nil
}

func (s *sessions) Store(st *persistenceTypes.SessionState) error {
	if s.p.closed() {
		return persistenceTypes.ErrNotOpen
	}

	if st == nil || st.ClientID == "" {
		return persistenceTypes.ErrInvalidArgs
	}

	ctx, cancel := s.p.ctx()
	defer cancel()

	_, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: st.ClientID}},
		st,
		options.Replace().SetUpsert(true))

	return pkgerrors.Wrap(err, "store session")
}

func (s *sessions) Delete(id string) error {
	if s.p.closed() {
		return persistenceTypes.ErrNotOpen
	}

	ctx, cancel := s.p.ctx()
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return pkgerrors.Wrap(err, "delete session")
	}

	if res.DeletedCount == 0 {
		return persistenceTypes.ErrNotFound
	}

	return nil
}

func (s *sessions) Wipe() error {
	if s.p.closed() {
		return persistenceTypes.ErrNotOpen
	}

	ctx, cancel := s.p.ctx()
	defer cancel()

	_, err := s.coll.DeleteMany(ctx, bson.D{})

	return pkgerrors.Wrap(err, "wipe sessions")
}

type retained struct {
	p    *impl
	coll *mongo.Collection
}

func (r *retained) Store(msgs []persistenceTypes.Message) error {
	if r.p.closed() {
		return persistenceTypes.ErrNotOpen
	}

	ctx, cancel := r.p.ctx()
	defer cancel()

	if _, err := r.coll.DeleteMany(ctx, bson.D{}); err != nil {
		return pkgerrors.Wrap(err, "clear retained")
	}

	if len(msgs) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(msgs))
	for i := range msgs {
		docs = append(docs, msgs[i])
	}

	_, err := r.coll.InsertMany(ctx, docs)

	return pkgerrors.Wrap(err, "store retained")
}

func (r *retained) Load() ([]persistenceTypes.Message, error) {
	if r.p.closed() {
		return nil, persistenceTypes.ErrNotOpen
	}

	ctx, cancel := r.p.ctx()
	defer cancel()

	cur, err := r.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "topic", Value: 1}}))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "find retained")
	}

	var res []persistenceTypes.Message
	if err = cur.All(ctx, &res); err != nil {
		return nil, pkgerrors.Wrap(err, "decode retained")
	}

	return res, nil
}

func (r *retained) Wipe() error {
	if r.p.closed() {
		return persistenceTypes.ErrNotOpen
	}

	ctx, cancel := r.p.ctx()
	defer cancel()

	_, err := r.coll.DeleteMany(ctx, bson.D{})

	return pkgerrors.Wrap(err, "wipe retained")
}
