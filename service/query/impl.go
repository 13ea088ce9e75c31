package query

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/database/mongoclient"
	"github.com/x-xyz/goauction/base/log"
	"github.com/x-xyz/goauction/base/metrics"
	"github.com/x-xyz/goauction/domain"
)

const (
	queryMaxTime  = 20 * time.Second
	slowThreshold = 500 * time.Millisecond
)

var (
	timeNow = time.Now
	met     = metrics.New("mongo")
)

type impl struct {
	client     *mongoclient.Client
	checkIndex bool
}

// New returns a Mongo backed by client. With checkIndex set, reads are
// explained first and refused when the planner would scan the collection.
func New(client *mongoclient.Client, checkIndex bool) Mongo {
	return &impl{
		client:     client,
		checkIndex: checkIndex,
	}
}

// op is the bookkeeping shared by every call on one collection
type op struct {
	c      ctx.Ctx
	coll   *mongo.Collection
	table  string
	action string
	query  interface{}
	start  time.Time
	timer  metrics.Ender
}

func (im *impl) begin(c ctx.Ctx, table domain.Table, action string, query interface{}) *op {
	return &op{
		c:      ctx.WithValues(c, map[string]interface{}{"table": table, "action": action}),
		coll:   im.client.Collection(string(table)),
		table:  string(table),
		action: action,
		query:  query,
		start:  timeNow(),
		timer:  met.BumpTime("time", "func", action, "table", string(table)),
	}
}

func (o *op) end() {
	o.timer.End()
	elapsed := timeNow().Sub(o.start)
	if elapsed < slowThreshold {
		return
	}
	met.BumpSum("slowlog", 1, "table", o.table, "action", o.action)
	o.c.WithFields(log.Fields{
		"query":      o.query,
		"startTime":  o.start.Unix(),
		"durationMs": elapsed.Milliseconds(),
	}).Warn("mongo slowlog")
}

func (o *op) fail(msg string, err error) error {
	if _, ok := err.(topology.ConnectionError); ok {
		met.BumpSum("conn.err", 1, "table", o.table)
	}
	o.c.WithField("err", err).Error(msg)
	return err
}

func (im *impl) Insert(c ctx.Ctx, table domain.Table, doc interface{}) error {
	o := im.begin(c, table, "insert", nil)
	defer o.end()

	if _, err := o.coll.InsertOne(o.c, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return o.fail("coll.InsertOne failed", err)
	}
	return nil
}

func (im *impl) FindOne(c ctx.Ctx, table domain.Table, query, result interface{}) error {
	o := im.begin(c, table, "findone", query)
	defer o.end()

	if err := im.explain(o, "find", bson.E{Key: "filter", Value: query}); err != nil {
		return err
	}

	err := o.coll.FindOne(o.c, query, options.FindOne().SetMaxTime(queryMaxTime)).Decode(result)
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	} else if err != nil {
		return o.fail("coll.FindOne failed", err)
	}
	return nil
}

func (im *impl) Upsert(c ctx.Ctx, table domain.Table, selector, doc interface{}) error {
	o := im.begin(c, table, "upsert", selector)
	defer o.end()

	if _, err := o.coll.ReplaceOne(o.c, selector, doc, options.Replace().SetUpsert(true)); err != nil {
		return o.fail("coll.ReplaceOne failed", err)
	}
	return nil
}

func (im *impl) Search(c ctx.Ctx, table domain.Table, offset, limit int, sortFields []string, query, results interface{}) error {
	o := im.begin(c, table, "search", query)
	defer o.end()

	if err := im.explain(o, "find", bson.E{Key: "filter", Value: query}); err != nil {
		return err
	}

	opts := options.Find().SetMaxTime(queryMaxTime).SetSkip(int64(offset)).SetLimit(int64(limit))
	if keys := sortKeys(sortFields); len(keys) > 0 {
		opts.SetSort(keys)
	}
	cursor, err := o.coll.Find(o.c, query, opts)
	if err != nil {
		return o.fail("coll.Find failed", err)
	}
	defer cursor.Close(o.c)

	if err := cursor.All(o.c, results); err != nil {
		return o.fail("cursor.All failed", err)
	}
	return nil
}

func (im *impl) EnsureIndexes(c ctx.Ctx, table domain.Table, indexes ...Index) error {
	if len(indexes) == 0 {
		return nil
	}
	o := im.begin(c, table, "ensureIndexes", nil)
	defer o.end()

	models := make([]mongo.IndexModel, 0, len(indexes))
	for _, idx := range indexes {
		models = append(models, mongo.IndexModel{
			Keys:    sortKeys(idx.Fields),
			Options: options.Index().SetUnique(idx.Unique),
		})
	}
	if _, err := o.coll.Indexes().CreateMany(o.c, models); err != nil {
		return o.fail("Indexes.CreateMany failed", err)
	}
	return nil
}

// sortKeys turns ["a", "-b"] into {a: 1, b: -1}, empty names are skipped
func sortKeys(fields []string) bson.D {
	keys := bson.D{}
	for _, f := range fields {
		switch {
		case f == "":
		case strings.HasPrefix(f, "-"):
			keys = append(keys, bson.E{Key: f[1:], Value: -1})
		default:
			keys = append(keys, bson.E{Key: f, Value: 1})
		}
	}
	return keys
}

// explain runs the query planner and rejects plans containing COLLSCAN.
// https://docs.mongodb.com/manual/reference/command/explain/
func (im *impl) explain(o *op, command string, filter bson.E) error {
	if !im.checkIndex {
		return nil
	}
	res := im.client.Db().RunCommand(o.c, bson.D{
		{Key: "explain", Value: bson.D{{Key: command, Value: o.table}, filter}},
		{Key: "verbosity", Value: "queryPlanner"},
	})

	var plan bson.M
	if err := res.Decode(&plan); err != nil {
		met.BumpSum("explain.err", 1, "table", o.table)
		o.c.WithField("err", err).Warn("explain decode failed")
		return nil
	}

	// the plan layout differs across server versions, so match on the text
	if strings.Contains(fmt.Sprintf("%v", plan), "COLLSCAN") {
		o.c.WithField("query", filter.Value).Warn("COLLSCAN")
		return ErrCollScan
	}
	return nil
}
