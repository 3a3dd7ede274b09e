package gowfs

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/metrics"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/protocol"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

// 能力文档中坐标的默认小数位
const defaultDecimalPlaces = 8

// WebFeatureService 按请求类型分发到各个处理器
type WebFeatureService struct {
	opts          *Options
	stores        *StoreManager
	storedQueries *StoredQueryHandler
	transactions  *TransactionHandler
	locks         *LockFeatureHandler
	capabilities  *CapabilitiesHandler
}

// NewWebFeatureService 配置有误时直接返回错误，不会带着残缺的配置启动
func NewWebFeatureService(stores *StoreManager, opts ...Option) (*WebFeatureService, error) {
	if stores == nil {
		return nil, errors.New("store manager can not be empty")
	}
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	repair(&options)

	for _, v := range options.Versions {
		if _, err := ows.ParseVersion(string(v)); err != nil {
			return nil, errors.Errorf("unsupported wfs version '%s'", v)
		}
	}
	defaultCRS, err := geometry.LookupCRS(options.QueryCRS)
	if err != nil {
		return nil, errors.Wrap(err, "invalid query crs")
	}

	if options.Transformer == nil {
		if options.Transformer, err = geometry.NewTransformer("CRS:84"); err != nil {
			return nil, err
		}
	}
	// WGS84BoundingBox 要求经度在前的 WGS84
	if target := options.Transformer.Target(); target.EPSG != 4326 || target.LatLon {
		return nil, errors.Errorf("transformer target must be CRS:84, got %s", target)
	}
	if options.Formatter == nil {
		if options.Formatter, err = geometry.NewDecimalFormatter(defaultDecimalPlaces); err != nil {
			return nil, err
		}
	}

	s := &WebFeatureService{
		opts:          &options,
		stores:        stores,
		storedQueries: NewStoredQueryHandler(stores, options.ManagedStoredQueries),
	}
	analyzer := &queryAnalyzer{storedQueries: s.storedQueries, defaultCRS: defaultCRS, maxFeatures: options.MaxFeatures}
	s.transactions = NewTransactionHandler(stores, s.opts)
	s.locks = NewLockFeatureHandler(stores, s.opts, analyzer)
	s.capabilities = NewCapabilitiesHandler(stores, s.opts)
	return s, nil
}

func (s *WebFeatureService) StoredQueries() *StoredQueryHandler {
	return s.storedQueries
}

// HandleXML 处理 POST 请求体，返回协商后的版本用于输出异常报告
func (s *WebFeatureService) HandleXML(ctx context.Context, body io.Reader, w io.Writer) (version ows.Version, err error) {
	operation := "unknown"
	start := time.Now()
	defer func() {
		metrics.ObserveRequest(operation, errorCode(err), start)
	}()

	version = s.opts.Versions[len(s.opts.Versions)-1]
	root, err := xmlnode.Parse(body)
	if err != nil {
		return version, ows.New("Cannot parse request: "+err.Error(), ows.OperationParsingFailed)
	}
	operation = root.Name.Local
	if operation == "GetCapabilities" {
		return version, s.capabilities.DoGetCapabilities(ctx, version, w)
	}
	if version, err = ows.Negotiate(root.Attr("version"), s.opts.Versions); err != nil {
		return s.opts.Versions[len(s.opts.Versions)-1], err
	}
	log.DebugContextf(ctx, "xml request %s, version %s", operation, version)

	switch operation {
	case "Transaction":
		if !s.opts.EnableTransactions {
			return version, transactionsDisabled()
		}
		req, err := protocol.ParseTransaction(version, root)
		if err != nil {
			return version, err
		}
		return version, s.transactions.DoTransaction(ctx, req, w)
	case "LockFeature":
		req, err := protocol.ParseLockFeature(version, root)
		if err != nil {
			return version, err
		}
		return version, s.locks.DoLockFeature(ctx, req, w)
	case "CreateStoredQuery":
		req, err := protocol.ParseCreateStoredQuery(version, root)
		if err != nil {
			return version, err
		}
		return version, s.storedQueries.DoCreateStoredQuery(ctx, req, w)
	case "DropStoredQuery":
		req, err := protocol.ParseDropStoredQuery(version, root)
		if err != nil {
			return version, err
		}
		return version, s.storedQueries.DoDropStoredQuery(ctx, req, w)
	case "DescribeStoredQueries":
		req, err := protocol.ParseDescribeStoredQueries(version, root)
		if err != nil {
			return version, err
		}
		return version, s.storedQueries.DoDescribeStoredQueries(ctx, req, w)
	case "ListStoredQueries":
		return version, s.storedQueries.DoListStoredQueries(ctx, &protocol.ListStoredQueries{Version: version}, w)
	}
	return version, ows.New("Request '"+operation+"' is not supported.", ows.OperationNotSupported, "request")
}

// HandleKVP 处理 GET 请求参数
func (s *WebFeatureService) HandleKVP(ctx context.Context, values url.Values, w io.Writer) (version ows.Version, err error) {
	params := protocol.NewKVP(values)
	operation := params.Get("REQUEST")
	start := time.Now()
	defer func() {
		metrics.ObserveRequest(operation, errorCode(err), start)
	}()

	version = s.opts.Versions[len(s.opts.Versions)-1]
	if service := params.Get("SERVICE"); service != "" && !strings.EqualFold(service, "WFS") {
		return version, ows.New("Service '"+service+"' is not supported.", ows.InvalidParameterValue, "service")
	}
	if operation == "" {
		return version, ows.New("Parameter 'REQUEST' is missing.", ows.MissingParameterValue, "request")
	}

	if strings.EqualFold(operation, "GetCapabilities") {
		accepted := params.Get("ACCEPTVERSIONS", "VERSION")
		if i := strings.Index(accepted, ","); i >= 0 {
			accepted = accepted[:i]
		}
		if version, err = ows.Negotiate(accepted, s.opts.Versions); err != nil {
			return s.opts.Versions[len(s.opts.Versions)-1], err
		}
		return version, s.capabilities.DoGetCapabilities(ctx, version, w)
	}
	if version, err = ows.Negotiate(params.Get("VERSION"), s.opts.Versions); err != nil {
		return s.opts.Versions[len(s.opts.Versions)-1], err
	}
	log.DebugContextf(ctx, "kvp request %s, version %s", operation, version)

	switch strings.ToLower(operation) {
	case "transaction":
		if !s.opts.EnableTransactions {
			return version, transactionsDisabled()
		}
		req, err := protocol.ParseTransactionKVP(version, params)
		if err != nil {
			return version, err
		}
		return version, s.transactions.DoTransaction(ctx, req, w)
	case "lockfeature":
		req, err := protocol.ParseLockFeatureKVP(version, params)
		if err != nil {
			return version, err
		}
		return version, s.locks.DoLockFeature(ctx, req, w)
	case "dropstoredquery":
		req, err := protocol.ParseDropStoredQueryKVP(version, params)
		if err != nil {
			return version, err
		}
		return version, s.storedQueries.DoDropStoredQuery(ctx, req, w)
	case "describestoredqueries":
		req, err := protocol.ParseDescribeStoredQueriesKVP(version, params)
		if err != nil {
			return version, err
		}
		return version, s.storedQueries.DoDescribeStoredQueries(ctx, req, w)
	case "liststoredqueries":
		return version, s.storedQueries.DoListStoredQueries(ctx, &protocol.ListStoredQueries{Version: version}, w)
	}
	return version, ows.New("Request '"+operation+"' is not supported.", ows.OperationNotSupported, "request")
}

func transactionsDisabled() error {
	return ows.New("Transactions are not enabled for this WFS.", ows.OperationNotSupported, "request")
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	return ows.CodeOf(err).String()
}
