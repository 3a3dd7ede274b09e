package ows

import (
	"encoding/xml"
	"io"
)

const (
	OGCNamespace   = "http://www.opengis.net/ogc"
	OWS10Namespace = "http://www.opengis.net/ows"
	OWS11Namespace = "http://www.opengis.net/ows/1.1"
)

// 1.0.0 使用 OGC SE_XML
type serviceExceptionReport struct {
	XMLName    xml.Name                `xml:"ServiceExceptionReport"`
	Xmlns      string                  `xml:"xmlns,attr"`
	Version    string                  `xml:"version,attr"`
	Exceptions []serviceExceptionEntry `xml:"ServiceException"`
}

type serviceExceptionEntry struct {
	Code    string `xml:"code,attr,omitempty"`
	Locator string `xml:"locator,attr,omitempty"`
	Text    string `xml:",chardata"`
}

// 1.1.0 / 2.0.0 使用 OWS ExceptionReport
type owsExceptionReport struct {
	XMLName    xml.Name            `xml:"ows:ExceptionReport"`
	XmlnsOWS   string              `xml:"xmlns:ows,attr"`
	Version    string              `xml:"version,attr"`
	Exceptions []owsExceptionEntry `xml:"ows:Exception"`
}

type owsExceptionEntry struct {
	Code    string   `xml:"exceptionCode,attr"`
	Locator string   `xml:"locator,attr,omitempty"`
	Texts   []string `xml:"ows:ExceptionText"`
}

// WriteReport 以协议版本对应的方言输出异常报告
func WriteReport(w io.Writer, version Version, err error) error {
	e, ok := As(err)
	if !ok {
		e = &Exception{Code: NoApplicableCode, Message: err.Error()}
		if p, isParam := AsParameterError(err); isParam {
			e = &Exception{Code: p.Code(), Locator: p.Name, Message: p.Message}
		}
	}

	var doc interface{}
	switch version {
	case Version100:
		doc = &serviceExceptionReport{
			Xmlns:   OGCNamespace,
			Version: "1.2.0",
			Exceptions: []serviceExceptionEntry{{
				Code:    e.Code.String(),
				Locator: e.Locator,
				Text:    e.Message,
			}},
		}
	case Version110:
		doc = &owsExceptionReport{
			XmlnsOWS:   OWS10Namespace,
			Version:    "1.0.0",
			Exceptions: []owsExceptionEntry{newOWSEntry(e)},
		}
	default:
		doc = &owsExceptionReport{
			XmlnsOWS:   OWS11Namespace,
			Version:    "2.0.0",
			Exceptions: []owsExceptionEntry{newOWSEntry(e)},
		}
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(doc)
}

func newOWSEntry(e *Exception) owsExceptionEntry {
	entry := owsExceptionEntry{Code: e.Code.String(), Locator: e.Locator}
	if e.Message != "" {
		entry.Texts = []string{e.Message}
	}
	return entry
}
