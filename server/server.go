package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"
	"github.com/xiaoxuxiansheng/gowfs"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/recordstore/catalog"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const xmlContentType = "text/xml; charset=UTF-8"

type Options struct {
	// 为空时不开启 CORS
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// 为空时不提供 /csw/records
	Catalog *catalog.Catalog
}

type Option func(*Options)

func WithAllowedOrigins(origins ...string) Option {
	return func(o *Options) {
		o.AllowedOrigins = origins
	}
}

func WithTimeouts(read, write time.Duration) Option {
	return func(o *Options) {
		o.ReadTimeout = read
		o.WriteTimeout = write
	}
}

func WithShutdownTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.ShutdownTimeout = timeout
	}
}

func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Options) {
		o.Catalog = c
	}
}

func repair(o *Options) {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = time.Minute
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 10 * time.Second
	}
}

// Server wfs 与记录库的 http 入口
type Server struct {
	addr    string
	service *gowfs.WebFeatureService
	opts    *Options
	handler http.Handler
}

func NewServer(addr string, service *gowfs.WebFeatureService, opts ...Option) *Server {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	repair(&options)

	s := &Server{addr: addr, service: service, opts: &options}
	s.handler = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.Use(accessLog)
	router.HandleFunc("/wfs", s.handleKVP).Methods(http.MethodGet)
	router.HandleFunc("/wfs", s.handleXML).Methods(http.MethodPost)
	if s.opts.Catalog != nil {
		router.HandleFunc("/csw/records", s.handleRecordInsert).Methods(http.MethodPost)
		router.HandleFunc("/csw/records", s.handleRecordDelete).Methods(http.MethodDelete)
	}
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	var h http.Handler = router
	if len(s.opts.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.opts.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(h)
	}
	h = handlers.CompressHandler(h)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))(h)
}

// Serve 阻塞直到 ctx 结束或监听失败，ctx 结束后在超时内优雅退出
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errC := make(chan error, 1)
	go func() {
		log.Infof("http server listening on %s", s.addr)
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	log.Infof("http server on %s stopped", s.addr)
	return nil
}

func (s *Server) handleKVP(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	version, err := s.service.HandleKVP(r.Context(), r.URL.Query(), &buf)
	writeXML(w, r, &buf, version, err)
}

func (s *Server) handleXML(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	version, err := s.service.HandleXML(r.Context(), r.Body, &buf)
	writeXML(w, r, &buf, version, err)
}

// writeXML 请求失败时丢弃已写入的部分响应，改为输出异常报告
func writeXML(w http.ResponseWriter, r *http.Request, buf *bytes.Buffer, version ows.Version, err error) {
	w.Header().Set("Content-Type", xmlContentType)
	if err != nil {
		writeReport(w, r, version, err)
		return
	}
	if _, err := io.Copy(w, buf); err != nil {
		log.WarnContextf(r.Context(), "write response failed, err: %v", err)
	}
}

func writeReport(w http.ResponseWriter, r *http.Request, version ows.Version, err error) {
	code := ows.CodeOf(err)
	status := ows.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		log.ErrorContextf(r.Context(), "%s %s failed, err: %v", r.Method, r.URL.Path, err)
	} else {
		log.InfoContextf(r.Context(), "%s %s rejected, code: %s, err: %v", r.Method, r.URL.Path, code, err)
	}
	w.Header().Set("Content-Type", xmlContentType)
	w.WriteHeader(status)
	if err := ows.WriteReport(w, version, err); err != nil {
		log.WarnContextf(r.Context(), "write exception report failed, err: %v", err)
	}
}

type recordResponse struct {
	ID         int    `json:"id"`
	Identifier string `json:"identifier"`
	Format     string `json:"format"`
	Updated    bool   `json:"updated"`
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

// handleRecordInsert ?update=true 时按记录标识替换，?inspire=true 开启 INSPIRE 校验
func (s *Server) handleRecordInsert(w http.ResponseWriter, r *http.Request) {
	root, err := xmlnode.Parse(r.Body)
	if err != nil {
		writeReport(w, r, ows.Version200, ows.New("Cannot parse record: "+err.Error(), ows.OperationParsingFailed))
		return
	}
	query := r.URL.Query()
	inspire, update := cast.ToBool(query.Get("inspire")), cast.ToBool(query.Get("update"))

	insert := s.opts.Catalog.Insert
	if update {
		insert = s.opts.Catalog.Update
	}
	res, err := insert(r.Context(), root, inspire)
	if err != nil {
		writeReport(w, r, ows.Version200, err)
		return
	}
	status := http.StatusCreated
	if update {
		status = http.StatusOK
	}
	writeJSON(w, r, status, &recordResponse{
		ID:         res.ID,
		Identifier: res.Identifier,
		Format:     res.Format.String(),
		Updated:    update,
	})
}

func (s *Server) handleRecordDelete(w http.ResponseWriter, r *http.Request) {
	root, err := xmlnode.Parse(r.Body)
	if err != nil {
		writeReport(w, r, ows.Version200, ows.New("Cannot parse filter: "+err.Error(), ows.OperationParsingFailed))
		return
	}
	f, err := filter.Parse(root)
	if err != nil {
		writeReport(w, r, ows.Version200, ows.New(err.Error(), ows.InvalidParameterValue, "filter"))
		return
	}
	n, err := s.opts.Catalog.Delete(r.Context(), f)
	if err != nil {
		writeReport(w, r, ows.Version200, err)
		return
	}
	writeJSON(w, r, http.StatusOK, &deleteResponse{Deleted: n})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		writeReport(w, r, ows.Version200, ows.Wrap(err, ows.NoApplicableCode))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.WarnContextf(r.Context(), "write response failed, err: %v", err)
	}
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.DebugContextf(r.Context(), "%s %s cost %s", r.Method, r.URL.RequestURI(), time.Since(start))
	})
}

// recoveryLogger 把 panic 记录到服务日志
type recoveryLogger struct{}

func (recoveryLogger) Println(args ...interface{}) {
	log.Errorf("recovered from panic: %v", args)
}
