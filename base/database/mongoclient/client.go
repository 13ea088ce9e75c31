package mongoclient

import (
	"crypto/tls"
	"runtime"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/x-xyz/goauction/base/backoff"
	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/log"
)

const (
	socketTimeout  = 60 * time.Second
	connectTimeout = 10 * time.Second
	retryInterval  = time.Second
)

// Config describes how to reach the database
type Config struct {
	URI    string
	AuthDB string
	DB     string
	SSL    bool
	// Majority makes writes wait for a majority of the replica set
	Majority bool
	// PoolMultiplier scales the connection pool with the cpu count, default 1
	PoolMultiplier float64
	// Attempts bounds the connect tries, default 1
	Attempts int
}

// Client is a mongo.Client bound to one database
type Client struct {
	*mongo.Client
	db string
}

// Db is the configured database
func (cli *Client) Db() *mongo.Database {
	return cli.Database(cli.db)
}

// Collection is a collection of the configured database
func (cli *Client) Collection(name string) *mongo.Collection {
	return cli.Db().Collection(name)
}

// PingPrimary checks the primary is reachable
func (cli *Client) PingPrimary(c ctx.Ctx) error {
	return cli.Ping(c, readpref.Primary())
}

// MustConnect is Connect but panics on failure
func MustConnect(c ctx.Ctx, cfg Config) *Client {
	cli, err := Connect(c, cfg)
	if err != nil {
		c.WithFields(log.Fields{"db": cfg.DB, "err": err}).Panic("failed to mongoclient.Connect")
	}
	return cli
}

// Connect opens the client and checks the database answers, retrying the check
// up to cfg.Attempts times one second apart.
func Connect(c ctx.Ctx, cfg Config) (*Client, error) {
	conn, err := connstring.Parse(cfg.URI)
	if err != nil {
		c.WithFields(log.Fields{"db": cfg.DB, "err": err}).Error("failed to connstring.Parse")
		return nil, err
	}
	c = ctx.WithValues(c, map[string]interface{}{"mongoHosts": conn.Hosts, "db": cfg.DB})

	cli, err := mongo.NewClient(clientOptions(c, cfg, conn))
	if err != nil {
		c.WithField("err", err).Error("failed to mongo.NewClient")
		return nil, err
	}

	// Connect only starts the topology, servers are dialed on first use
	if err := cli.Connect(c); err != nil {
		c.WithField("err", err).Error("failed to client.Connect")
		return nil, err
	}

	// a bad db name, missing grants or an unreachable server show up here
	try := func() error {
		tc, cancel := ctx.WithTimeout(c, connectTimeout)
		defer cancel()
		if _, err := cli.Database(cfg.DB).ListCollectionNames(tc, bson.D{}); err != nil {
			c.WithField("err", err).Warn("failed to ListCollectionNames")
			return err
		}
		return nil
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	if err := backoff.Retry(c, backoff.NewConstant(retryInterval), attempts, try); err != nil {
		c.WithField("err", err).Error("mongo unreachable")
		_ = cli.Disconnect(c)
		return nil, err
	}

	c.Info("mongo connected")
	return &Client{Client: cli, db: cfg.DB}, nil
}

func clientOptions(c ctx.Ctx, cfg Config, conn connstring.ConnString) *options.ClientOptions {
	opts := options.Client().ApplyURI(cfg.URI).SetSocketTimeout(socketTimeout).SetRetryWrites(true)

	// credentials in the uri authenticate against AuthDB unless it names one
	if conn.Username != "" && conn.AuthSource == "" {
		opts.SetAuth(options.Credential{
			AuthMechanism:           conn.AuthMechanism,
			AuthMechanismProperties: conn.AuthMechanismProperties,
			Username:                conn.Username,
			Password:                conn.Password,
			PasswordSet:             conn.PasswordSet,
			AuthSource:              cfg.AuthDB,
		})
	}

	mul := cfg.PoolMultiplier
	if mul <= 0 {
		mul = 1
	}
	// the driver keeps one pool per host, split the total between them
	hosts := len(conn.Hosts)
	if hosts == 0 {
		hosts = 1
	}
	perHost := (int(float64(runtime.NumCPU())*mul) + hosts - 1) / hosts
	if perHost < 1 {
		perHost = 1
	}
	opts.SetMinPoolSize(uint64(perHost / 4)).SetMaxPoolSize(uint64(perHost))
	c.WithField("poolSize", perHost).Info("mongo driver pool size")

	if cfg.SSL {
		opts.SetTLSConfig(&tls.Config{})
	}
	if cfg.Majority {
		opts.SetWriteConcern(writeconcern.New(writeconcern.WMajority()))
	}
	return opts
}
