package mongoutil

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	defaultMaxPoolSize = 100
	defaultMaxRetry    = 3
)

func buildMongoURI(config *Config, authSource string) string {
	credentials := ""
	if config.Username != "" && config.Password != "" {
		credentials = fmt.Sprintf("%s:%s@", config.Username, config.Password)
	}

	return fmt.Sprintf(
		"mongodb://%s%s/%s?authSource=%s&maxPoolSize=%d",
		credentials,
		strings.Join(config.Address, ","),
		config.Database,
		authSource,
		config.MaxPoolSize,
	)
}

// shouldRetry reports whether a connect error is worth another attempt.
// Auth failures (13 unauthorized, 18 auth failed) are not.
func shouldRetry(ctx context.Context, err error) bool {
	select {
	case <-ctx.Done():
		return false
	default:
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) {
			return cmdErr.Code != 13 && cmdErr.Code != 18
		}
		return true
	}
}

// IsDuplicateKey wraps mongo.IsDuplicateKeyError so callers above the data
// layer don't import the driver.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
