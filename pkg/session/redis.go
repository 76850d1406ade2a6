package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	redis "github.com/redis/go-redis/v9"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// redisstore stores sessions as JSON values under a key prefix, so that several
// coordinator processes can share them. Updates use WATCH/MULTI.
type redisstore struct {
	client redis.UniversalClient
	owned  bool
	prefix string
	ttl    time.Duration
}

var _ upload.SessionStore = (*redisstore)(nil)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultKeyPrefix = "upload:session:"
	pingTimeout      = 5 * time.Second
	scanCount        = 100
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewRedis connects to the redis server at the URL, for example
// "redis://localhost:6379/0", and returns a session store. Keys expire
// after ttl without updates; zero means never.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*redisstore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, httpresponse.ErrBadRequest.With(err)
	}
	self, err := NewRedisWithClient(ctx, redis.NewClient(opts), ttl)
	if err != nil {
		return nil, err
	}
	self.owned = true
	return self, nil
}

// NewRedisWithClient returns a session store using an existing client,
// which is not closed by the store
func NewRedisWithClient(ctx context.Context, client redis.UniversalClient, ttl time.Duration) (*redisstore, error) {
	self := new(redisstore)
	self.client = client
	self.prefix = DefaultKeyPrefix
	self.ttl = max(ttl, 0)

	// Check the connection
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, httpresponse.ErrGatewayError.Withf("redis: %v", err)
	}

	// Return success
	return self, nil
}

func (r *redisstore) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (r *redisstore) Get(ctx context.Context, id string) (*schema.Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, httpresponse.ErrNotFound.Withf("upload %q", id)
	} else if err != nil {
		return nil, httpresponse.ErrGatewayError.Withf("redis: %v", err)
	}
	return decode(data)
}

func (r *redisstore) Put(ctx context.Context, session *schema.Session) error {
	if err := validate(session); err != nil {
		return err
	}
	next := session.Clone()
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(session.UploadId), data, r.ttl).Err(); err != nil {
		return httpresponse.ErrGatewayError.Withf("redis: %v", err)
	}
	session.Version = next.Version
	return nil
}

func (r *redisstore) Delete(ctx context.Context, id string) error {
	if n, err := r.client.Del(ctx, r.key(id)).Result(); err != nil {
		return httpresponse.ErrGatewayError.Withf("redis: %v", err)
	} else if n == 0 {
		return httpresponse.ErrNotFound.Withf("upload %q", id)
	}
	return nil
}

func (r *redisstore) CompareAndSwap(ctx context.Context, old, next *schema.Session) (bool, error) {
	if err := validate(next); err != nil {
		return false, err
	} else if old == nil || old.UploadId != next.UploadId {
		return false, httpresponse.ErrBadRequest.With("session identifiers differ")
	}

	// Write the next version
	value := next.Clone()
	value.Version = old.Version + 1
	payload, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	key := r.key(old.UploadId)
	swapped, err := r.watch(ctx, old, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, key, payload, r.ttl)
	})
	if swapped {
		next.Version = value.Version
	}
	return swapped, err
}

func (r *redisstore) CompareAndDelete(ctx context.Context, old *schema.Session) (bool, error) {
	if err := validate(old); err != nil {
		return false, err
	}
	key := r.key(old.UploadId)
	return r.watch(ctx, old, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, key)
	})
}

func (r *redisstore) List(ctx context.Context) ([]*schema.Session, error) {
	var result []*schema.Session
	iter := r.client.Scan(ctx, 0, r.prefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		session, err := r.Get(ctx, iter.Val()[len(r.prefix):])
		if errors.Is(err, httpresponse.ErrNotFound) {
			// Expired or deleted during the scan
			continue
		} else if err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	if err := iter.Err(); err != nil {
		return nil, httpresponse.ErrGatewayError.Withf("redis: %v", err)
	}
	return result, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// watch runs the commands queued by fn in a transaction, if the stored
// session still has the version of old when the transaction executes
func (r *redisstore) watch(ctx context.Context, old *schema.Session, fn func(redis.Pipeliner)) (bool, error) {
	key := r.key(old.UploadId)
	matched := false
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return httpresponse.ErrNotFound.Withf("upload %q", old.UploadId)
		} else if err != nil {
			return err
		}
		current, err := decode(data)
		if err != nil {
			return err
		} else if current.Version != old.Version {
			return nil
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			fn(pipe)
			return nil
		}); err != nil {
			return err
		}
		matched = true
		return nil
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		// The key changed between WATCH and EXEC
		return false, nil
	case err != nil:
		var code httpresponse.Err
		if errors.As(err, &code) {
			return false, err
		}
		return false, httpresponse.ErrGatewayError.Withf("redis: %v", err)
	}
	return matched, nil
}

func (r *redisstore) key(id string) string {
	return r.prefix + id
}

func decode(data []byte) (*schema.Session, error) {
	var session schema.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, httpresponse.ErrInternalError.Withf("corrupt session: %v", err)
	}
	return &session, nil
}
