package xmlnode

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sample = `<?xml version="1.0"?>
<gmd:MD_Metadata xmlns:gmd="http://www.isotc211.org/2005/gmd" xmlns:gco="http://www.isotc211.org/2005/gco">
  <gmd:fileIdentifier><gco:CharacterString> abc-1 </gco:CharacterString></gmd:fileIdentifier>
  <gmd:language><gmd:LanguageCode codeListValue="ger">German</gmd:LanguageCode></gmd:language>
  <gmd:hierarchyLevel><gmd:MD_ScopeCode codeListValue="service"/></gmd:hierarchyLevel>
  <gmd:hierarchyLevel><gmd:MD_ScopeCode codeListValue="dataset"/></gmd:hierarchyLevel>
</gmd:MD_Metadata>`

var ns = Namespaces{
	"gmd": "http://www.isotc211.org/2005/gmd",
	"gco": "http://www.isotc211.org/2005/gco",
}

func Test_Parse_select(t *testing.T) {
	root, err := ParseString(sample)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, root.Is(ns["gmd"], "MD_Metadata"))

	assert.Equal(t, "abc-1", root.ValueOf(ns, "./gmd:fileIdentifier/gco:CharacterString", ""))
	assert.Equal(t, "ger", root.ValueOf(ns, "./gmd:language/gmd:LanguageCode/@codeListValue", ""))
	assert.Equal(t, []string{"service", "dataset"}, root.ValuesOf(ns, "gmd:hierarchyLevel/gmd:MD_ScopeCode/@codeListValue"))
	assert.Equal(t, "none", root.ValueOf(ns, "gmd:parentIdentifier/gco:CharacterString", "none"))
	assert.Equal(t, 2, len(root.Select(ns, "gmd:hierarchyLevel/*")))
	assert.Equal(t, true, root.SelectOne(ns, "gmd:missing") == nil)
}

func Test_Parse_errors(t *testing.T) {
	_, err := ParseString("")
	assert.Equal(t, true, err != nil)
	_, err = ParseString("<a:b/>")
	assert.Equal(t, true, err != nil)
	_, err = ParseString("<a><b></a>")
	assert.Equal(t, true, err != nil)
}

func Test_Encode_declares_namespaces(t *testing.T) {
	root, err := ParseString(sample)
	assert.Equal(t, nil, err)

	fileIdentifier := root.SelectOne(ns, "gmd:fileIdentifier")
	out := fileIdentifier.String()
	assert.Equal(t, true, strings.HasPrefix(out, "<gmd:fileIdentifier "))
	assert.Equal(t, true, strings.Contains(out, `xmlns:gco="http://www.isotc211.org/2005/gco"`))
	assert.Equal(t, true, strings.Contains(out, `xmlns:gmd="http://www.isotc211.org/2005/gmd"`))

	again, err := ParseString(out)
	assert.Equal(t, nil, err)
	assert.Equal(t, "abc-1", again.ValueOf(ns, "gco:CharacterString", ""))

	built := NewElement(ns["gmd"], "gmd", "identifier")
	cs := built.AddChild(NewElement(ns["gco"], "gco", "CharacterString"))
	cs.Text = "a<b"
	built.SetAttr("id", "x1")
	assert.Equal(t, `<gmd:identifier xmlns:gco="http://www.isotc211.org/2005/gco" xmlns:gmd="http://www.isotc211.org/2005/gmd" id="x1"><gco:CharacterString>a&lt;b</gco:CharacterString></gmd:identifier>`, built.String())

	clone := built.Clone()
	clone.SetAttr("id", "x2")
	assert.Equal(t, "x1", built.Attr("id"))
	assert.Equal(t, "x2", clone.Attr("id"))
}

func Test_Encode(t *testing.T) {
	// Encode 不是 io.WriterTo
	var _ interface{ Encode(io.Writer) error } = (*Node)(nil)
	_, isWriterTo := interface{}(&Node{}).(io.WriterTo)
	assert.Equal(t, false, isWriterTo)

	root, err := ParseString(sample)
	assert.Equal(t, nil, err)
	var buf bytes.Buffer
	assert.Equal(t, nil, root.Encode(&buf))
	assert.Equal(t, root.String(), buf.String())

	var nilNode *Node
	assert.Equal(t, true, nilNode.Encode(&buf) != nil)
}
