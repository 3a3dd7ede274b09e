package parsing

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/recordstore"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

const xlinkNamespace = "http://www.w3.org/1999/xlink"

// ErrCoupling 紧耦合服务记录引用的数据资源不一致
var ErrCoupling = errors.New("inconsistent tight coupling")

var ns = xmlnode.Namespaces{
	"gmd":   recordstore.GMDNamespace,
	"gco":   recordstore.GCONamespace,
	"srv":   recordstore.SRVNamespace,
	"dc":    recordstore.DCNamespace,
	"dct":   recordstore.DCTNamespace,
	"csw":   recordstore.CSW202Namespace,
	"ows":   recordstore.OWSNamespace,
	"xlink": xlinkNamespace,
}

type Options struct {
	// NewUUID 生成记录标识
	NewUUID func() string
	// Intn 随机数，用于替换数字开头的标识
	Intn func(n int) int
	// MaxAttempts 标识冲突时的最大重试次数
	MaxAttempts int
}

type Option func(*Options)

func WithUUIDFunc(f func() string) Option {
	return func(o *Options) {
		o.NewUUID = f
	}
}

func WithIntn(f func(n int) int) Option {
	return func(o *Options) {
		o.Intn = f
	}
}

func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

func repair(o *Options) {
	if o.NewUUID == nil {
		o.NewUUID = uuid.NewString
	}
	if o.Intn == nil {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		o.Intn = r.Intn
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 16
	}
}

// Parser 把 ISO / DC 元数据解析成可查询属性和各种记录表示
type Parser struct {
	lookup Lookup
	opts   *Options
}

func NewParser(lookup Lookup, opts ...Option) *Parser {
	p := Parser{lookup: lookup, opts: &Options{}}
	for _, opt := range opts {
		opt(p.opts)
	}
	repair(p.opts)
	return &p
}

// ParseAPISO 解析 gmd:MD_Metadata
func (p *Parser) ParseAPISO(ctx context.Context, root *xmlnode.Node, isInspire bool) (*recordstore.ParsedProfileElement, error) {
	if !root.Is(recordstore.GMDNamespace, "MD_Metadata") {
		return nil, errors.Errorf("expected gmd:MD_Metadata, got '%s'", root.Name.Local)
	}
	qp, rp := &recordstore.QueryableProperties{}, &recordstore.ReturnableProperties{}
	full := root.Clone()
	generated := &recordstore.GeneratedRecord{}

	identifier := root.ValueOf(ns, "gmd:fileIdentifier/gco:CharacterString", "")
	if identifier == "" {
		id, err := p.generateUUID(ctx)
		if err != nil {
			return nil, err
		}
		identifier = id
		generated.Identifier = characterString("fileIdentifier", id)
		full.Children = append([]*xmlnode.Node{generated.Identifier}, full.Children...)
	}
	qp.Identifiers = []string{identifier}

	qp.Language = firstOf(root,
		"gmd:language/gco:CharacterString",
		"gmd:language/gmd:LanguageCode@codeListValue")
	qp.ParentIdentifier = root.ValueOf(ns, "gmd:parentIdentifier/gco:CharacterString", "")
	qp.Type = root.ValueOf(ns, "gmd:hierarchyLevel/gmd:MD_ScopeCode@codeListValue", "dataset")
	qp.Modified = parseDate(ctx, firstOf(root, "gmd:dateStamp/gco:Date", "gmd:dateStamp/gco:DateTime"))

	for _, rs := range root.Select(ns, "gmd:referenceSystemInfo/gmd:MD_ReferenceSystem/gmd:referenceSystemIdentifier/gmd:RS_Identifier") {
		code := rs.ValueOf(ns, "gmd:code/gco:CharacterString", "")
		if code == "" {
			continue
		}
		if space := rs.ValueOf(ns, "gmd:codeSpace/gco:CharacterString", ""); space != "" && !strings.Contains(code, ":") {
			code = space + ":" + code
		}
		qp.CRS = append(qp.CRS, code)
	}

	for _, f := range root.Select(ns, "gmd:distributionInfo/gmd:MD_Distribution/gmd:distributionFormat/gmd:MD_Format") {
		qp.Formats = append(qp.Formats, recordstore.FormatName{
			Name:    f.ValueOf(ns, "gmd:name/gco:CharacterString", ""),
			Version: f.ValueOf(ns, "gmd:version/gco:CharacterString", ""),
		})
	}

	ident := full.SelectOne(ns, "gmd:identificationInfo/*")
	if err := p.parseIdentificationInfo(ctx, ident, qp, rp, isInspire); err != nil {
		return nil, err
	}
	parseDataQualityInfo(ctx, root, qp)

	generated.Representations = append(generated.Representations, isoRepresentations(full)...)
	generated.Representations = append(generated.Representations, dcRepresentations(qp, rp)...)
	log.DebugContextf(ctx, "parsed iso record '%s'", identifier)
	return &recordstore.ParsedProfileElement{
		Format:     recordstore.FormatISO,
		Queryable:  qp,
		Returnable: rp,
		Record:     generated,
	}, nil
}

// ParseAPDC 解析 csw:Record
func (p *Parser) ParseAPDC(ctx context.Context, root *xmlnode.Node) (*recordstore.ParsedProfileElement, error) {
	if root == nil || root.Name.Space != recordstore.CSW202Namespace || root.Name.Local != "Record" {
		return nil, errors.New("expected csw:Record")
	}
	qp, rp := &recordstore.QueryableProperties{}, &recordstore.ReturnableProperties{}

	qp.Identifiers = root.ValuesOf(ns, "dc:identifier")
	if len(qp.Identifiers) == 0 {
		return nil, errors.New("dublin core record without dc:identifier")
	}
	rp.Creator = root.ValueOf(ns, "dc:creator", "")
	if subjects := root.ValuesOf(ns, "dc:subject"); len(subjects) > 0 {
		qp.Keywords = []recordstore.Keyword{{Values: subjects}}
	}
	qp.Titles = root.ValuesOf(ns, "dc:title")
	qp.Abstracts = root.ValuesOf(ns, "dct:abstract")
	for _, f := range root.ValuesOf(ns, "dc:format") {
		qp.Formats = append(qp.Formats, recordstore.FormatName{Name: f})
	}
	qp.Modified = parseDate(ctx, root.ValueOf(ns, "dct:modified", ""))
	qp.Type = root.ValueOf(ns, "dc:type", "")
	qp.Language = root.ValueOf(ns, "dc:language", "")
	rp.Publisher = root.ValueOf(ns, "dc:publisher", "")
	rp.Contributor = root.ValueOf(ns, "dc:contributor", "")
	rp.Source = root.ValueOf(ns, "dc:source", "")
	rp.Rights = root.ValuesOf(ns, "dc:rights")
	rp.Relations = root.ValuesOf(ns, "dc:relation")

	box := root.SelectOne(ns, "ows:BoundingBox")
	if box == nil {
		box = root.SelectOne(ns, "ows:WGS84BoundingBox")
	}
	if box != nil {
		bbox, err := parseCorners(box)
		if err != nil {
			log.WarnContextf(ctx, "ignore bounding box of record '%s': %v", qp.Identifiers[0], err)
		} else {
			qp.BoundingBox = bbox
			if crs := box.Attr("crs"); crs != "" {
				qp.CRS = append(qp.CRS, crs)
			}
		}
	}

	generated := &recordstore.GeneratedRecord{Representations: dcRepresentations(qp, rp)}
	for i := range generated.Representations {
		if generated.Representations[i].Set == recordstore.Full {
			generated.Representations[i].Data = root.Clone()
		}
	}
	return &recordstore.ParsedProfileElement{
		Format:     recordstore.FormatDC,
		Queryable:  qp,
		Returnable: rp,
		Record:     generated,
	}, nil
}

// parseCorners LowerCorner 为 "west south"，UpperCorner 为 "east north"
func parseCorners(box *xmlnode.Node) (*recordstore.BoundingBox, error) {
	lower := strings.Fields(box.ValueOf(ns, "ows:LowerCorner", ""))
	upper := strings.Fields(box.ValueOf(ns, "ows:UpperCorner", ""))
	if len(lower) != 2 || len(upper) != 2 {
		return nil, errors.New("corners must have two coordinates")
	}
	var values [4]float64
	for i, s := range []string{lower[0], lower[1], upper[0], upper[1]} {
		v, err := cast.ToFloat64E(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid coordinate '%s'", s)
		}
		values[i] = v
	}
	return &recordstore.BoundingBox{West: values[0], South: values[1], East: values[2], North: values[3]}, nil
}

// generateUUID 标识会被用作 xml id，不能以数字开头
func (p *Parser) generateUUID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < p.opts.MaxAttempts; attempt++ {
		id := p.opts.NewUUID()
		if id == "" {
			continue
		}
		if id[0] >= '0' && id[0] <= '9' {
			id = string(p.randomLetter()) + id[1:]
		}
		exists, err := p.lookup.IdentifierExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
		log.DebugContextf(ctx, "generated identifier '%s' already exists, retry", id)
	}
	return "", errors.Errorf("no free identifier after %d attempts", p.opts.MaxAttempts)
}

// randomLetter 大小写各一半
func (p *Parser) randomLetter() byte {
	base := byte('A')
	if p.opts.Intn(2) == 1 {
		base = 'a'
	}
	return base + byte(p.opts.Intn(26))
}

// checkCoupling 紧耦合服务引用的每个数据资源都必须已入库，且出现在耦合资源列表中
func (p *Parser) checkCoupling(ctx context.Context, operatesOn, coupledIdentifiers []string) error {
	for _, ref := range operatesOn {
		exists, err := p.lookup.ResourceIdentifierExists(ctx, ref)
		if err != nil {
			return err
		}
		if !exists {
			return errors.Wrapf(ErrCoupling, "no resource identifier '%s' found in the data metadata", ref)
		}
	}
	coupled := make(map[string]bool, len(coupledIdentifiers))
	for _, id := range coupledIdentifiers {
		coupled[id] = true
	}
	for _, ref := range operatesOn {
		if !coupled[ref] {
			return errors.Wrapf(ErrCoupling, "operatesOn '%s' has no coupled resource", ref)
		}
	}
	if len(operatesOn) == 0 && len(coupledIdentifiers) > 0 {
		return errors.Wrap(ErrCoupling, "coupled resources without operatesOn")
	}
	return nil
}

func firstOf(n *xmlnode.Node, paths ...string) string {
	for _, path := range paths {
		if v := n.ValueOf(ns, path, ""); v != "" {
			return v
		}
	}
	return ""
}

func parseDate(ctx context.Context, s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := recordstore.ParseDate(s)
	if err != nil {
		log.WarnContextf(ctx, "ignore date: %v", err)
		return time.Time{}
	}
	return t
}

// characterString gmd:<local>/gco:CharacterString
func characterString(local, value string) *xmlnode.Node {
	n := xmlnode.NewElement(recordstore.GMDNamespace, "gmd", local)
	cs := n.AddChild(xmlnode.NewElement(recordstore.GCONamespace, "gco", "CharacterString"))
	cs.Text = value
	return n
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
