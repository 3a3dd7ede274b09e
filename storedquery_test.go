package gowfs

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/protocol"
)

func roadsByNameQuery(t *testing.T, id, language string) *protocol.CreateStoredQuery {
	root := mustParse(t, `<wfs:CreateStoredQuery xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:fes="http://www.opengis.net/fes/2.0" service="WFS" version="2.0.0">
  <wfs:StoredQueryDefinition id="`+id+`">
    <wfs:Title>Roads by name</wfs:Title>
    <wfs:Parameter name="name" type="xs:string"/>
    <wfs:QueryExpressionText returnFeatureTypes="app:Road" language="`+language+`" isPrivate="false">
      <wfs:Query typeNames="app:Road">
        <fes:Filter>
          <fes:PropertyIsEqualTo>
            <fes:ValueReference>app:name</fes:ValueReference>
            <fes:Literal>${name}</fes:Literal>
          </fes:PropertyIsEqualTo>
        </fes:Filter>
      </wfs:Query>
    </wfs:QueryExpressionText>
  </wfs:StoredQueryDefinition>
</wfs:CreateStoredQuery>`)
	req, err := protocol.ParseCreateStoredQuery(ows.Version200, root)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func Test_StoredQueryHandler_fixedQueries(t *testing.T) {
	h := NewStoredQueryHandler(nil, false)
	assert.Equal(t, true, h.HasStoredQuery(GetFeatureByID))
	assert.Equal(t, true, h.HasStoredQuery(GetFeatureByType))

	qs, err := h.Expand(protocol.Query{StoredQueryID: GetFeatureByID, Parameters: map[string]string{"ID": "r1"}})
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(qs))
	assert.Equal(t, []string{"r1"}, qs[0].Filter.(*filter.IDFilter).IDs)

	qs, err = h.Expand(protocol.Query{StoredQueryID: GetFeatureByType, Parameters: map[string]string{"TYPENAME": "app:Road"}})
	assert.Equal(t, nil, err)
	assert.Equal(t, "Road", qs[0].TypeNames[0].Local)

	_, err = h.Expand(protocol.Query{StoredQueryID: GetFeatureByID})
	assert.Equal(t, ows.MissingParameterValue, ows.CodeOf(err))

	err = h.Drop(context.Background(), &protocol.DropStoredQuery{ID: GetFeatureByID})
	assert.Equal(t, ows.InvalidParameterValue, ows.CodeOf(err))
	e, _ := ows.As(err)
	assert.Equal(t, "storedQueryId", e.Locator)
}

func Test_StoredQueryHandler_create(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		managed bool
		req     *protocol.CreateStoredQuery
		code    ows.Code
		locator string
	}{
		{
			name: "not configured",
			req:  roadsByNameQuery(t, "urn:roads", QueryExpressionLanguage),
			code: ows.OperationProcessingFailed,
		},
		{
			name:    "duplicate id",
			managed: true,
			req:     roadsByNameQuery(t, GetFeatureByType, QueryExpressionLanguage),
			code:    ows.DuplicateStoredQueryIdValue,
			locator: GetFeatureByType,
		},
		{
			name:    "unsupported language",
			managed: true,
			req:     roadsByNameQuery(t, "urn:roads", "urn:xpath"),
			code:    ows.InvalidParameterValue,
			locator: "language",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStoredQueryHandler(nil, tt.managed)
			err := h.Create(ctx, tt.req)
			assert.Equal(t, tt.code, ows.CodeOf(err))
			e, _ := ows.As(err)
			assert.Equal(t, tt.locator, e.Locator)
			assert.Equal(t, false, h.HasStoredQuery("urn:roads"))
		})
	}
}

func Test_StoredQueryHandler_lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(roadSchema())
	defer store.close()
	manager := NewStoreManager()
	_ = manager.AddStore(store)
	h := NewStoredQueryHandler(manager, true)

	var buf bytes.Buffer
	err := h.DoCreateStoredQuery(ctx, roadsByNameQuery(t, "urn:roads", QueryExpressionLanguage), &buf)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, strings.Contains(buf.String(), `status="OK"`))

	qs, err := h.Expand(protocol.Query{StoredQueryID: "urn:roads", Parameters: map[string]string{"NAME": "A1"}})
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(qs))
	assert.Equal(t, "Road", qs[0].TypeNames[0].Local)
	ok, err := qs[0].Filter.(*filter.OperatorFilter).Evaluate(road("r1", "A1", 4, 7, 50))
	assert.Equal(t, nil, err)
	assert.Equal(t, true, ok)

	buf.Reset()
	err = h.DoListStoredQueries(ctx, &protocol.ListStoredQueries{Version: ows.Version200}, &buf)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, strings.Contains(buf.String(), `<StoredQuery id="urn:roads"><Title>Roads by name</Title><ReturnFeatureType>Road</ReturnFeatureType></StoredQuery>`))
	assert.Equal(t, true, strings.Contains(buf.String(), `<StoredQuery id="`+GetFeatureByID+`">`))

	buf.Reset()
	err = h.DoDescribeStoredQueries(ctx, &protocol.DescribeStoredQueries{IDs: []string{"urn:roads"}}, &buf)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, strings.Contains(buf.String(), `<Parameter name="name" type="xs:string"></Parameter>`))
	assert.Equal(t, true, strings.Contains(buf.String(), `language="`+QueryExpressionLanguage+`"`))

	err = h.DoDescribeStoredQueries(ctx, &protocol.DescribeStoredQueries{IDs: []string{"urn:missing"}}, &bytes.Buffer{})
	assert.Equal(t, ows.InvalidParameterValue, ows.CodeOf(err))

	err = h.DoDropStoredQuery(ctx, &protocol.DropStoredQuery{ID: "urn:roads"}, &bytes.Buffer{})
	assert.Equal(t, nil, err)
	assert.Equal(t, false, h.HasStoredQuery("urn:roads"))

	err = h.Drop(ctx, &protocol.DropStoredQuery{ID: "urn:roads"})
	assert.Equal(t, ows.InvalidParameterValue, ows.CodeOf(err))
}
