package ows

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func Test_exception_codes(t *testing.T) {
	err := New("srsName is unknown", InvalidParameterValue, "srsName")
	e, ok := As(errors.Wrap(err, "insert"))
	assert.Equal(t, true, ok)
	assert.Equal(t, InvalidParameterValue, e.Code)
	assert.Equal(t, "srsName", e.Locator)
	assert.Equal(t, false, IsClientInput(err))
	assert.Equal(t, NoApplicableCode, CodeOf(errors.New("boom")))

	perr := errors.Wrap(MissingParameter("typeName", "update needs a type name"), "parse update")
	assert.Equal(t, true, IsClientInput(perr))
	assert.Equal(t, MissingParameterValue, CodeOf(perr))
	p, ok := AsParameterError(perr)
	assert.Equal(t, true, ok)
	converted := FromParameterError(p, "Error occured during transaction: ")
	ce, _ := As(converted)
	assert.Equal(t, "typeName", ce.Locator)
	assert.Equal(t, "Error occured during transaction: update needs a type name", ce.Message)
	assert.Equal(t, InvalidParameterValue, CodeOf(InvalidParameter("lockId", "unknown lock")))

	wrapped := Wrap(err, CannotLockAllFeatures)
	assert.Equal(t, CannotLockAllFeatures, CodeOf(wrapped))
	we, _ := As(wrapped)
	assert.Equal(t, "srsName is unknown", we.Message)
	assert.Equal(t, nil, Wrap(nil, NoApplicableCode))

	assert.Equal(t, http.StatusForbidden, HTTPStatus(LockHasExpired))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(NoApplicableCode))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(MissingParameterValue))
}

func Test_version_negotiate(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		offered   []Version
		expect    Version
		expectErr bool
	}{
		{name: "default highest", requested: "", offered: SupportedVersions, expect: Version200},
		{name: "explicit", requested: "1.1.0", offered: SupportedVersions, expect: Version110},
		{name: "not offered", requested: "1.0.0", offered: []Version{Version200}, expectErr: true},
		{name: "unknown", requested: "3.0.0", offered: SupportedVersions, expectErr: true},
		{name: "no offer", requested: "", expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Negotiate(tt.requested, tt.offered)
			assert.Equal(t, tt.expectErr, err != nil)
			if !tt.expectErr {
				assert.Equal(t, tt.expect, v)
			}
		})
	}

	_, err := ParseVersion("")
	assert.Equal(t, MissingParameterValue, CodeOf(err))
}

func Test_write_report(t *testing.T) {
	err := New("no such lock", LockHasExpired, "lockId")

	var buf bytes.Buffer
	assert.Equal(t, nil, WriteReport(&buf, Version100, err))
	out := buf.String()
	assert.Equal(t, true, strings.Contains(out, `<ServiceExceptionReport xmlns="http://www.opengis.net/ogc" version="1.2.0">`))
	assert.Equal(t, true, strings.Contains(out, `code="LockHasExpired"`))
	assert.Equal(t, true, strings.Contains(out, `locator="lockId"`))

	buf.Reset()
	assert.Equal(t, nil, WriteReport(&buf, Version110, err))
	out = buf.String()
	assert.Equal(t, true, strings.Contains(out, `xmlns:ows="http://www.opengis.net/ows"`))
	assert.Equal(t, true, strings.Contains(out, `<ows:ExceptionText>no such lock</ows:ExceptionText>`))

	buf.Reset()
	assert.Equal(t, nil, WriteReport(&buf, Version200, errors.New("raw failure")))
	out = buf.String()
	assert.Equal(t, true, strings.Contains(out, `xmlns:ows="http://www.opengis.net/ows/1.1"`))
	assert.Equal(t, true, strings.Contains(out, `exceptionCode="NoApplicableCode"`))
}
