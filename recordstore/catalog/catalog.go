package catalog

import (
	"context"

	"github.com/pkg/errors"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/pkg"
	"github.com/xiaoxuxiansheng/gowfs/recordstore"
	"github.com/xiaoxuxiansheng/gowfs/recordstore/generating"
	"github.com/xiaoxuxiansheng/gowfs/recordstore/parsing"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
	"github.com/xiaoxuxiansheng/redis_lock"
	"gorm.io/gorm"
)

type Options struct {
	// Inspire 入库时做 INSPIRE 校验
	Inspire bool
	Parsing []parsing.Option
	// Namespaces 删除过滤器中可用的前缀
	Namespaces xmlnode.Namespaces
	// 非空时同一标识的入库在多实例间串行
	Client             *redis_lock.Client
	GuardExpireSeconds int64
}

type Option func(*Options)

func WithInspire(inspire bool) Option {
	return func(o *Options) {
		o.Inspire = inspire
	}
}

func WithParsingOptions(opts ...parsing.Option) Option {
	return func(o *Options) {
		o.Parsing = append(o.Parsing, opts...)
	}
}

func WithNamespaces(ns xmlnode.Namespaces) Option {
	return func(o *Options) {
		o.Namespaces = ns
	}
}

func WithRedisClient(client *redis_lock.Client) Option {
	return func(o *Options) {
		o.Client = client
	}
}

func WithGuardExpireSeconds(seconds int64) Option {
	return func(o *Options) {
		o.GuardExpireSeconds = seconds
	}
}

func repair(o *Options) {
	if o.Namespaces == nil {
		o.Namespaces = defaultNamespaces
	}
	if o.GuardExpireSeconds <= 0 {
		o.GuardExpireSeconds = 10
	}
}

// Catalog ISO / DC 元数据记录库
type Catalog struct {
	parser    *parsing.Parser
	generator *generating.Generator
	opts      *Options
}

func New(db *gorm.DB, opts ...Option) *Catalog {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	repair(&options)
	return &Catalog{
		parser:    parsing.NewParser(parsing.NewDBLookup(db), options.Parsing...),
		generator: generating.NewGenerator(db),
		opts:      &options,
	}
}

// InsertResult 入库结果
type InsertResult struct {
	ID         int
	Identifier string
	Format     recordstore.Format
}

// Insert 解析并写入一条记录
func (c *Catalog) Insert(ctx context.Context, root *xmlnode.Node, inspire bool) (*InsertResult, error) {
	parsed, err := c.parse(ctx, root, inspire)
	if err != nil {
		return nil, err
	}
	identifier := parsed.Queryable.Identifiers[0]
	var id int
	err = c.guarded(ctx, identifier, func() error {
		id, err = c.generator.Insert(ctx, parsed)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &InsertResult{ID: id, Identifier: identifier, Format: parsed.Format}, nil
}

// Update 按记录标识替换已有记录
func (c *Catalog) Update(ctx context.Context, root *xmlnode.Node, inspire bool) (*InsertResult, error) {
	parsed, err := c.parse(ctx, root, inspire)
	if err != nil {
		return nil, err
	}
	identifier := parsed.Queryable.Identifiers[0]
	var id int
	err = c.guarded(ctx, identifier, func() error {
		var ok bool
		if id, ok, err = c.generator.FindByIdentifier(ctx, identifier); err != nil {
			return err
		}
		if !ok {
			return ows.New("No record with identifier '"+identifier+"'.", ows.InvalidParameterValue, "identifier")
		}
		return c.generator.Update(ctx, parsed, id)
	})
	if err != nil {
		return nil, err
	}
	return &InsertResult{ID: id, Identifier: identifier, Format: parsed.Format}, nil
}

// Delete 删除满足过滤器的记录，返回删除条数
func (c *Catalog) Delete(ctx context.Context, f filter.Filter) (int, error) {
	query, args, err := newQueryBuilder(c.opts.Namespaces).selectIDs(f)
	if err != nil {
		return 0, err
	}
	log.DebugContextf(ctx, "select records to delete: %s", query)
	ids, err := c.generator.SelectIDs(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return c.generator.Delete(ctx, ids)
}

// Inspire 默认的 INSPIRE 开关
func (c *Catalog) Inspire() bool {
	return c.opts.Inspire
}

// guarded 配置了 redis 时持有记录标识的分布式锁执行 do
func (c *Catalog) guarded(ctx context.Context, identifier string, do func() error) error {
	if c.opts.Client == nil {
		return do()
	}
	guard := redis_lock.NewRedisLock(pkg.BuildRecordLockKey(identifier), c.opts.Client, redis_lock.WithExpireSeconds(c.opts.GuardExpireSeconds))
	if err := guard.Lock(ctx); err != nil {
		return errors.Wrapf(err, "acquire record guard of '%s'", identifier)
	}
	defer func() {
		if err := guard.Unlock(ctx); err != nil {
			log.ErrorContextf(ctx, "release record guard failed, err: %v", err)
		}
	}()
	return do()
}

func (c *Catalog) parse(ctx context.Context, root *xmlnode.Node, inspire bool) (*recordstore.ParsedProfileElement, error) {
	var (
		parsed *recordstore.ParsedProfileElement
		err    error
	)
	switch {
	case root.Is(recordstore.GMDNamespace, "MD_Metadata"):
		parsed, err = c.parser.ParseAPISO(ctx, root, inspire || c.opts.Inspire)
	case root.Is(recordstore.CSW202Namespace, "Record"):
		parsed, err = c.parser.ParseAPDC(ctx, root)
	default:
		name := ""
		if root != nil {
			name = root.Name.Local
		}
		return nil, ows.New("Records of type '"+name+"' are not supported.", ows.InvalidParameterValue, "record")
	}
	if errors.Is(err, parsing.ErrCoupling) {
		return nil, ows.New(err.Error(), ows.InvalidParameterValue, "operatesOn")
	}
	if err != nil {
		return nil, ows.Wrap(err, ows.InvalidParameterValue)
	}
	return parsed, nil
}
