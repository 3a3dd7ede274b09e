package gowfs

import (
	"encoding/xml"

	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/protocol"
)

// queryAnalyzer 把请求中的查询转换成针对单个存储的查询
type queryAnalyzer struct {
	storedQueries *StoredQueryHandler
	defaultCRS    geometry.CRS
	maxFeatures   int
}

// analyze 存储查询先展开；没有类型名的 id 查询作用于存储的全部要素类型
func (a *queryAnalyzer) analyze(store featurestore.FeatureStore, queries []protocol.Query) ([]featurestore.Query, error) {
	var expanded []protocol.Query
	for _, q := range queries {
		qs, err := a.storedQueries.Expand(q)
		if err != nil {
			return nil, err
		}
		expanded = append(expanded, qs...)
	}

	schema := store.Schema()
	var out []featurestore.Query
	for _, q := range expanded {
		filter.SetDefaultCRS(q.Filter, a.defaultCRS)
		typeNames := q.TypeNames
		if len(typeNames) == 0 {
			if _, ok := q.Filter.(*filter.IDFilter); !ok {
				return nil, ows.MissingParameter("typeName", "Query without typeName.")
			}
			for _, ft := range schema.FeatureTypes {
				typeNames = append(typeNames, ft.Name)
			}
		}
		if len(typeNames) > 1 && len(q.TypeNames) > 1 {
			return nil, ows.New("Join queries are not supported.", ows.OperationNotSupported, "typeNames")
		}

		for _, name := range typeNames {
			ft := schema.FeatureType(name)
			if ft == nil {
				return nil, notServedType(name)
			}
			out = append(out, featurestore.Query{TypeName: ft.Name, Filter: q.Filter, MaxFeatures: a.maxFeatures})
		}
	}
	return out, nil
}

func notServedType(name xml.Name) error {
	return ows.InvalidParameter("typeName", "Feature type '"+name.Local+"' is not served by this WFS.")
}
