package catalog

import (
	"context"
	"errors"

	// Packages
	pg "github.com/mutablelogic/go-pg"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// pgcatalog keeps content records in a PostgreSQL table
type pgcatalog struct {
	conn pg.PoolConn
}

var _ upload.ContentStore = (*pgcatalog)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewPG returns a content catalog using the connection pool, creating the
// schema and table if they do not exist
func NewPG(ctx context.Context, conn pg.PoolConn) (*pgcatalog, error) {
	self := new(pgcatalog)
	if conn == nil {
		return nil, httpresponse.ErrBadRequest.With("nil connection")
	} else {
		self.conn = conn.With("schema", schema.SchemaName).(pg.PoolConn)
	}

	// Create the schema
	if exists, err := pg.SchemaExists(ctx, self.conn, schema.SchemaName); err != nil {
		return nil, err
	} else if !exists {
		if err := pg.SchemaCreate(ctx, self.conn, schema.SchemaName); err != nil {
			return nil, err
		}
	}

	// Bootstrap the table
	if err := self.conn.Tx(ctx, func(conn pg.Conn) error {
		return schema.BootstrapContent(ctx, conn)
	}); err != nil {
		return nil, err
	}

	// Return success
	return self, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (c *pgcatalog) CreateContent(ctx context.Context, meta schema.ContentMeta) (*schema.Content, error) {
	var content schema.Content
	if err := c.conn.Insert(ctx, &content, meta); err != nil {
		return nil, pgerr(err)
	}
	return &content, nil
}

func (c *pgcatalog) UpdateContent(ctx context.Context, id uint64, update schema.ContentUpdate) (*schema.Content, error) {
	var content schema.Content
	if err := c.conn.Update(ctx, &content, schema.ContentId(id), update); err != nil {
		return nil, pgerr(err)
	}
	return &content, nil
}

func (c *pgcatalog) GetContent(ctx context.Context, id uint64) (*schema.Content, error) {
	var content schema.Content
	if err := c.conn.Get(ctx, &content, schema.ContentId(id)); err != nil {
		return nil, pgerr(err)
	}
	return &content, nil
}

func (c *pgcatalog) DeleteContent(ctx context.Context, id uint64) (*schema.Content, error) {
	var content schema.Content
	if err := c.conn.Delete(ctx, &content, schema.ContentId(id)); err != nil {
		return nil, pgerr(err)
	}
	return &content, nil
}

func (c *pgcatalog) ListContent(ctx context.Context, req schema.ContentListRequest) (*schema.ContentList, error) {
	var list schema.ContentList
	if err := c.conn.List(ctx, &list, req); err != nil {
		return nil, pgerr(err)
	}
	return &list, nil
}

func (c *pgcatalog) ContentByHash(ctx context.Context, hash string) (*schema.Content, error) {
	var content schema.Content
	if err := c.conn.Get(ctx, &content, schema.ContentHash(hash)); err != nil {
		return nil, pgerr(err)
	}
	return &content, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func pgerr(err error) error {
	if errors.Is(err, pg.ErrNotFound) {
		return httpresponse.ErrNotFound.With(err)
	}
	return err
}
