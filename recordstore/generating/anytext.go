package generating

import (
	"strconv"
	"strings"

	"github.com/xiaoxuxiansheng/gowfs/recordstore"
)

const anyTextSeparator = " # "

// AnyText 全文检索列，所有非空文本值用 " # " 连接
func AnyText(qp *recordstore.QueryableProperties, rp *recordstore.ReturnableProperties) string {
	var values []string
	add := func(vs ...string) {
		for _, v := range vs {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
	}

	for _, k := range qp.Keywords {
		add(k.Type, k.Thesaurus)
		add(k.Values...)
	}
	add(qp.Titles...)
	add(qp.Abstracts...)
	for _, f := range qp.Formats {
		add(f.Name)
	}
	add(qp.Type)
	add(qp.CRS...)
	add(rp.Creator, rp.Contributor, rp.Publisher)
	add(qp.Language)
	add(rp.Relations...)
	add(rp.Rights...)
	add(qp.AlternateTitles...)
	add(qp.OrganisationName)
	add(qp.TopicCategories...)
	add(qp.ResourceLanguages...)
	add(qp.GeographicDescriptionCodes...)
	add(qp.DistanceUOM)
	add(qp.ServiceType)
	add(qp.Operations...)
	for _, o := range qp.OperatesOn {
		add(o.OperatesOn, o.Identifier, o.Name)
	}
	add(qp.CouplingType)
	return strings.Join(values, anyTextSeparator)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
