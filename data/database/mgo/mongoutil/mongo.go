package mongoutil

import (
	"context"
	"time"

	"PPDirect/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config represents the MongoDB configuration.
type Config struct {
	Uri         string   `envconfig:"URI"`
	Address     []string `envconfig:"ADDRESS"`
	Database    string   `envconfig:"DATABASE" default:"ppdirect"`
	Username    string   `envconfig:"USERNAME"`
	Password    string   `envconfig:"PASSWORD"`
	AuthSource  string   `envconfig:"AUTH_SOURCE"`
	MaxPoolSize int      `envconfig:"MAX_POOL_SIZE" default:"100"`
	MaxRetry    int      `envconfig:"MAX_RETRY" default:"3"`
	// Transactions requires a replica set or sharded cluster.
	Transactions bool `envconfig:"TRANSACTIONS" default:"false"`
}

func applyConfigToOptions(cfg *Config) (*options.ClientOptions, error) {
	var opts *options.ClientOptions

	switch {
	case cfg.Uri != "":
		opts = options.Client().ApplyURI(cfg.Uri)
	case len(cfg.Address) > 0:
		opts = options.Client().SetHosts(cfg.Address)
	default:
		return nil, errs.ErrArgs.WrapMsg("mongo uri or address is required")
	}

	opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))

	// explicit credentials win over the ones embedded in the URI
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}
	opts.SetAppName("ppdirect")
	return opts, nil
}

type Client struct {
	cli *mongo.Client
	db  *mongo.Database
	tx  bool
}

func (c *Client) GetDB() *mongo.Database {
	return c.db
}

func (c *Client) Ping(ctx context.Context) error {
	return c.cli.Ping(ctx, nil)
}

func (c *Client) Disconnect(ctx context.Context) error {
	return c.cli.Disconnect(ctx)
}

// WithTx runs fn inside a multi-document transaction when the deployment
// supports them, otherwise runs fn directly with ctx.
func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !c.tx {
		return fn(ctx)
	}
	sess, err := c.cli.StartSession()
	if err != nil {
		return errs.WrapMsg(err, "start session")
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// NewMongoDB initializes a new MongoDB connection.
func NewMongoDB(ctx context.Context, config *Config) (*Client, error) {
	if err := config.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	opts, err := applyConfigToOptions(config)
	if err != nil {
		return nil, err
	}
	var cli *mongo.Client
	for i := 0; i < config.MaxRetry; i++ {
		cli, err = connectMongo(ctx, opts)
		if err != nil && shouldRetry(ctx, err) {
			time.Sleep(time.Second / 2)
			continue
		}
		break
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "failed to connect to MongoDB", "Database", config.Database)
	}
	return &Client{
		cli: cli,
		db:  cli.Database(config.Database),
		tx:  config.Transactions,
	}, nil
}

func connectMongo(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return cli, nil
}
