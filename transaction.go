package gowfs

import (
	"context"
	"encoding/xml"
	"io"
	"regexp"
	"strconv"

	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
	"github.com/xiaoxuxiansheng/gowfs/gml"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/metrics"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/protocol"
)

// transactionScope 一次请求中获取到的各存储事务，出错时统一回滚
type transactionScope struct {
	ctx      context.Context
	acquired map[featurestore.FeatureStore]featurestore.Transaction
	// 获取顺序，提交与回滚都按这个顺序
	order []featurestore.FeatureStore
}

func newTransactionScope(ctx context.Context) *transactionScope {
	return &transactionScope{
		ctx:      ctx,
		acquired: make(map[featurestore.FeatureStore]featurestore.Transaction),
	}
}

// acquire 每个存储只获取一次事务
func (s *transactionScope) acquire(store featurestore.FeatureStore) (featurestore.Transaction, error) {
	if tx, ok := s.acquired[store]; ok {
		return tx, nil
	}
	tx, err := store.AcquireTransaction(s.ctx)
	if err != nil {
		return nil, ows.New("Cannot acquire transaction for feature store: "+err.Error(), ows.NoApplicableCode)
	}
	s.acquired[store] = tx
	s.order = append(s.order, store)
	return tx, nil
}

// commit 已提交的事务从 scope 中移除，之后的回滚不会再触及
func (s *transactionScope) commit() error {
	for len(s.order) > 0 {
		store := s.order[0]
		log.DebugContextf(s.ctx, "committing feature store transaction")
		if err := s.acquired[store].Commit(s.ctx); err != nil {
			return err
		}
		delete(s.acquired, store)
		s.order = s.order[1:]
	}
	return nil
}

// rollback 失败只记录日志
func (s *transactionScope) rollback() {
	for _, store := range s.order {
		if err := s.acquired[store].Rollback(s.ctx); err != nil {
			log.ErrorContextf(s.ctx, "error occured during rollback: %v", err)
		}
	}
	s.acquired = make(map[featurestore.FeatureStore]featurestore.Transaction)
	s.order = nil
}

// run 执行失败时回滚全部事务，返回原始错误
func (s *transactionScope) run(f func() error) error {
	if err := f(); err != nil {
		log.DebugContextf(s.ctx, "error occured during transaction, performing rollback: %v", err)
		s.rollback()
		return err
	}
	return nil
}

// TransactionHandler 执行 Transaction 请求
type TransactionHandler struct {
	stores *StoreManager
	opts   *Options
}

func NewTransactionHandler(stores *StoreManager, opts *Options) *TransactionHandler {
	return &TransactionHandler{stores: stores, opts: opts}
}

// transactionRun 单个请求的执行状态
type transactionRun struct {
	*TransactionHandler
	req    *protocol.Transaction
	scope  *transactionScope
	lock   featurestore.Lock
	result *transactionResult
}

func (h *TransactionHandler) DoTransaction(ctx context.Context, req *protocol.Transaction, w io.Writer) error {
	log.DebugContextf(ctx, "doTransaction: %d actions", len(req.Actions))
	run := &transactionRun{
		TransactionHandler: h,
		req:                req,
		scope:              newTransactionScope(ctx),
		result:             newTransactionResult(),
	}

	err := run.scope.run(func() error {
		return run.execute(ctx)
	})
	if err == nil {
		metrics.IncTransaction("committed")
		return writeTransactionResponse(w, req, run.result, false, "")
	}

	metrics.IncTransaction("rolledback")
	if p, ok := ows.AsParameterError(err); ok {
		if req.Version == ows.Version100 {
			return writeTransactionResponse(w, req, run.result, true, p.Message)
		}
		return ows.FromParameterError(p, "Error occured during transaction: ")
	}
	if _, ok := ows.As(err); ok {
		return err
	}
	return ows.New("Error occured during transaction: "+err.Error(), ows.NoApplicableCode)
}

func (r *transactionRun) execute(ctx context.Context) error {
	if r.req.LockID != "" {
		if err := r.resolveLock(ctx); err != nil {
			return err
		}
	}

	for _, action := range r.req.Actions {
		var err error
		switch a := action.(type) {
		case *protocol.Insert:
			metrics.IncAction("Insert")
			err = r.doInsert(ctx, a)
		case *protocol.Update:
			metrics.IncAction("Update")
			err = r.doUpdate(ctx, a)
		case *protocol.Delete:
			metrics.IncAction("Delete")
			err = r.doDelete(ctx, a)
		case *protocol.Replace:
			metrics.IncAction("Replace")
			err = r.doReplace(ctx, a)
		case *protocol.Native:
			metrics.IncAction("Native")
			err = r.doNative(ctx, a)
		default:
			err = ows.Newf(ows.OperationNotSupported, "Unsupported transaction action %T.", action)
		}
		if err != nil {
			return err
		}
	}

	if r.lock != nil && (r.req.ReleaseAction == protocol.ReleaseUnset || r.req.ReleaseAction == protocol.ReleaseAll || r.lock.NumLocked() == 0) {
		log.DebugContextf(ctx, "releasing lock %s", r.lock.ID())
		if err := r.lock.Release(ctx); err != nil {
			return ows.New("Cannot release lock: "+err.Error(), ows.NoApplicableCode)
		}
	}
	return r.scope.commit()
}

// resolveLock 锁由第一个存储的锁管理器负责
func (r *transactionRun) resolveLock(ctx context.Context) error {
	stores := r.stores.Stores()
	if len(stores) == 0 {
		return ows.New("Cannot acquire lock manager: no feature store defined", ows.NoApplicableCode)
	}
	manager, err := stores[0].LockManager()
	if err != nil {
		return ows.New("Cannot acquire lock manager: "+err.Error(), ows.NoApplicableCode)
	}
	if r.lock, err = manager.GetLock(ctx, r.req.LockID); err != nil {
		return err
	}
	return nil
}

// storeError 存储返回的 OWS 异常与参数错误原样向上抛出
func storeError(prefix string, err error, code ows.Code) error {
	if _, ok := ows.AsParameterError(err); ok {
		return err
	}
	if _, ok := ows.As(err); ok {
		return err
	}
	return ows.New(prefix+err.Error(), code)
}

func notServed(typeName xml.Name) error {
	return ows.New("Feature type '"+typeName.Local+"' is not served by this WFS.", ows.InvalidParameterValue, "typeName")
}

// crsOf 未指定 srsName 时使用默认查询坐标系
func (r *transactionRun) crsOf(srsName string) (geometry.CRS, bool) {
	name := srsName
	if name == "" {
		name = r.opts.QueryCRS
	}
	crs, err := geometry.LookupCRS(name)
	if err != nil {
		return geometry.CRS{}, false
	}
	return crs, true
}

func (r *transactionRun) defaultCRS() geometry.CRS {
	crs, _ := r.crsOf("")
	return crs
}

func (r *transactionRun) doInsert(ctx context.Context, insert *protocol.Insert) error {
	log.DebugContextf(ctx, "doInsert: %s", insert.Handle)
	stores := r.stores.Stores()
	switch len(stores) {
	case 0:
		return ows.New("Cannot perform insert. No feature store defined.", ows.NoApplicableCode)
	case 1:
	default:
		return ows.New("Cannot perform insert. More than one feature store is active -- this is currently not supported. "+
			"Please deactivate all feature stores, but one in order to make Insert transactions work.", ows.NoApplicableCode)
	}
	store := stores[0]

	crs, ok := r.crsOf(insert.SRSName)
	if !ok {
		return ows.New("Cannot perform insert. Specified srsName '"+insert.SRSName+"' is not supported by this WFS.",
			ows.InvalidParameterValue, "srsName")
	}
	version, err := r.opts.Formats.Resolve(insert.InputFormat, r.req.Version)
	if err != nil {
		return err
	}

	mode := r.opts.IDGenMode
	switch {
	case insert.IDGen != nil:
		mode = *insert.IDGen
	case r.req.Version == ows.Version110:
		mode = featurestore.GenerateNew
	}

	reader := gml.NewReader(version, store.Schema(),
		gml.WithDefaultCRS(crs),
		gml.WithReferencePolicy(r.opts.ReferenceResolvingMode.policy(store)),
	)
	features, err := reader.ReadFeatures(ctx, insert.Features)
	if err != nil {
		if _, ok := ows.As(err); ok {
			return err
		}
		code := ows.InvalidParameterValue
		if r.req.Version == ows.Version200 {
			code = ows.InvalidValue
		}
		return ows.New("Cannot perform insert operation: "+err.Error(), code)
	}

	tx, err := r.scope.acquire(store)
	if err != nil {
		return err
	}
	fids, err := tx.PerformInsert(ctx, features, mode)
	if err != nil {
		return storeError("Cannot perform insert operation: ", err, ows.InvalidParameterValue)
	}
	for _, fid := range fids {
		r.result.inserted.Add(fid, insert.Handle)
	}
	return nil
}

// propertyPath 属性名或者 name[N]，前缀忽略
var propertyPath = regexp.MustCompile(`^(?:[A-Za-z_][\w.\-]*:)?([A-Za-z_][\w.\-]*)(?:\[(\d+)\])?$`)

func (r *transactionRun) doUpdate(ctx context.Context, update *protocol.Update) error {
	log.DebugContextf(ctx, "doUpdate: %s", update.Handle)
	store := r.stores.StoreFor(update.TypeName)
	if store == nil {
		return notServed(update.TypeName)
	}
	ft := store.Schema().FeatureType(update.TypeName)

	crs, ok := r.crsOf(update.SRSName)
	if !ok {
		return ows.New("Specified srsName '"+update.SRSName+"' is not supported by this WFS.", ows.InvalidParameterValue, "srsName")
	}
	version, err := r.opts.Formats.Resolve(update.InputFormat, r.req.Version)
	if err != nil {
		return err
	}
	reader := gml.NewReader(version, store.Schema(), gml.WithDefaultCRS(crs))

	replacements := make([]featurestore.PropertyReplacement, 0, len(update.Properties))
	for _, prop := range update.Properties {
		m := propertyPath.FindStringSubmatch(prop.Path)
		if m == nil {
			return ows.New("Cannot update property on feature type '"+ft.Name.Local+"'. Complex property paths are not supported.",
				ows.OperationNotSupported)
		}
		index := -1
		if m[2] != "" {
			n, err := strconv.Atoi(m[2])
			if err != nil || n < 1 {
				return ows.New("Cannot update property on feature type '"+ft.Name.Local+"'. Complex property paths are not supported.",
					ows.OperationNotSupported)
			}
			index = n - 1
		}
		pt := ft.Property(xml.Name{Local: m[1]})
		if pt == nil {
			return ows.New("Cannot update property '"+m[1]+"' of feature type '"+ft.Name.Local+
				"'. The feature type does not define this property.", ows.OperationNotSupported)
		}

		replacement := featurestore.PropertyReplacement{Name: pt.Name, Index: index, Remove: prop.Value == nil}
		if prop.Value != nil {
			if replacement.Value, err = reader.PropertyValue(pt, prop.Value); err != nil {
				return ows.New(err.Error(), ows.InvalidValue)
			}
		}
		replacements = append(replacements, replacement)
	}
	filter.SetDefaultCRS(update.Filter, r.defaultCRS())

	tx, err := r.scope.acquire(store)
	if err != nil {
		return err
	}
	fids, err := tx.PerformUpdate(ctx, ft.Name, replacements, update.Filter, r.lock)
	if err != nil {
		return storeError("Error performing update: ", err, ows.NoApplicableCode)
	}
	for _, fid := range fids {
		r.result.updated.Add(fid, update.Handle)
	}
	return nil
}

func (r *transactionRun) doDelete(ctx context.Context, del *protocol.Delete) error {
	log.DebugContextf(ctx, "doDelete: %s", del.Handle)
	store := r.stores.StoreFor(del.TypeName)
	if store == nil {
		return notServed(del.TypeName)
	}
	ft := store.Schema().FeatureType(del.TypeName)

	tx, err := r.scope.acquire(store)
	if err != nil {
		return err
	}
	var deleted int
	switch f := del.Filter.(type) {
	case *filter.IDFilter:
		deleted, err = tx.PerformDeleteByIDs(ctx, f.IDs, r.lock)
	case *filter.OperatorFilter:
		filter.SetDefaultCRS(f, r.defaultCRS())
		deleted, err = tx.PerformDelete(ctx, ft.Name, f, r.lock)
	default:
		return ows.MissingParameter("Filter", "Delete without filter.")
	}
	if err != nil {
		return storeError("Error performing delete: ", err, ows.NoApplicableCode)
	}
	r.result.deleted += deleted
	return nil
}

func (r *transactionRun) doReplace(ctx context.Context, replace *protocol.Replace) error {
	log.DebugContextf(ctx, "doReplace: %s", replace.Handle)
	if replace.Feature == nil {
		return ows.MissingParameter("Replace", "Replace without replacement feature.")
	}
	store := r.stores.StoreFor(replace.Feature.Name)
	if store == nil {
		return notServed(replace.Feature.Name)
	}

	crs, ok := r.crsOf(replace.SRSName)
	if !ok {
		return ows.New("Specified srsName '"+replace.SRSName+"' is not supported by this WFS.", ows.InvalidParameterValue, "srsName")
	}
	reader := gml.NewReader(gml.GML32, store.Schema(),
		gml.WithDefaultCRS(crs),
		gml.WithReferencePolicy(r.opts.ReferenceResolvingMode.policy(store)),
	)
	replacement, err := reader.ReadFeature(ctx, replace.Feature)
	if err != nil {
		if _, ok := ows.As(err); ok {
			return err
		}
		return ows.New(err.Error(), ows.InvalidParameterValue)
	}
	filter.SetDefaultCRS(replace.Filter, r.defaultCRS())

	mode := r.opts.IDGenMode
	if replace.IDGen != nil {
		mode = *replace.IDGen
	}
	tx, err := r.scope.acquire(store)
	if err != nil {
		return err
	}
	fids, err := tx.PerformReplace(ctx, replacement, replace.Filter, r.lock, mode)
	if err != nil {
		return storeError("Error performing replace: ", err, ows.NoApplicableCode)
	}
	for _, fid := range fids {
		r.result.replaced.Add(fid, replace.Handle)
	}
	return nil
}

// doNative 不支持任何厂商扩展，只能忽略
func (r *transactionRun) doNative(ctx context.Context, native *protocol.Native) error {
	if !native.SafeToIgnore {
		return ows.New("Native operations are not supported by this WFS.", ows.InvalidParameterValue, "Native")
	}
	log.InfoContextf(ctx, "ignoring native operation of vendor '%s'", native.VendorID)
	return nil
}
