package gowfs

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/protocol"
)

func writeLockFeatureResponse(ctx context.Context, w io.Writer, version ows.Version, lock featurestore.Lock) error {
	rw := newResponseWriter(w)

	var root, idName xml.Name
	idAttr := "fid"
	switch version {
	case ows.Version100:
		root, idName = qname("wfs", "WFS_LockFeatureResponse"), qname("ogc", "FeatureId")
		rw.start(root, rootAttrs(version, nsAttr("wfs", protocol.WFSNamespace), nsAttr("ogc", filter.OGCNamespace))...)
		rw.text(qname("wfs", "LockId"), lock.ID())
	case ows.Version110:
		root, idName = qname("wfs", "LockFeatureResponse"), qname("ogc", "FeatureId")
		rw.start(root, rootAttrs(version, nsAttr("wfs", protocol.WFSNamespace), nsAttr("ogc", filter.OGCNamespace))...)
		rw.text(qname("wfs", "LockId"), lock.ID())
	default:
		root, idName, idAttr = qname("wfs", "LockFeatureResponse"), qname("fes", "ResourceId"), "rid"
		rw.start(root, rootAttrs(ows.Version200, attr("lockId", lock.ID()), nsAttr("wfs", protocol.WFS20Namespace), nsAttr("fes", filter.FESNamespace))...)
	}

	if lock.NumLocked() > 0 {
		if err := writeLockedIDs(rw, qname("wfs", "FeaturesLocked"), idName, idAttr, func() (featurestore.IDCursor, error) {
			return lock.LockedFeatures(ctx)
		}); err != nil {
			return err
		}
	}
	if lock.NumFailedToLock() > 0 {
		if err := writeLockedIDs(rw, qname("wfs", "FeaturesNotLocked"), idName, idAttr, func() (featurestore.IDCursor, error) {
			return lock.FailedToLockFeatures(ctx)
		}); err != nil {
			return err
		}
	}
	rw.end(root)
	return rw.flush()
}

// writeLockedIDs 游标在任何返回路径上都会关闭
func writeLockedIDs(rw *responseWriter, container, idName xml.Name, idAttr string, open func() (featurestore.IDCursor, error)) error {
	cursor, err := open()
	if err != nil {
		return ows.New("Cannot read locked features: "+err.Error(), ows.NoApplicableCode)
	}
	defer func() {
		if err := cursor.Close(); err != nil {
			log.Errorf("close feature id cursor failed, err: %v", err)
		}
	}()

	rw.start(container)
	for cursor.Next() {
		rw.empty(idName, attr(idAttr, cursor.ID()))
		if rw.err != nil {
			return rw.err
		}
	}
	if err := cursor.Err(); err != nil {
		return ows.New("Cannot read locked features: "+err.Error(), ows.NoApplicableCode)
	}
	rw.end(container)
	return rw.err
}
