// Package httpapi 以 HTTP 服务暴露翻译流水线：单个 SRT 请求体进、双语 SRT 出。
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"subtrans/internal/diag"
	"subtrans/internal/pipeline"
	"subtrans/pkg/contract"
)

// 响应头。
const (
	HeaderWarnings  = "X-Subtrans-Warnings"
	HeaderRequestID = "X-Request-Id"
)

// DefaultMaxBodyBytes 为未配置时的请求体上限。
const DefaultMaxBodyBytes int64 = 8 << 20

// BuilderFunc 按语言对构造提示构造器。
type BuilderFunc func(contract.Languages) (contract.PromptBuilder, error)

// Options 为服务参数。
type Options struct {
	Addr           string
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Server 持有一份装配好的组件；每个请求复制 Settings 并替换语言相关部分。
type Server struct {
	router  *chi.Mux
	comp    pipeline.Components
	set     pipeline.Settings
	newPB   BuilderFunc
	addr    string
	maxBody int64
	logger  *diag.Logger
}

// New 构造 Server。comp.PromptBuilder 会被逐请求替换，可以为空。
func New(comp pipeline.Components, set pipeline.Settings, newPB BuilderFunc, opts Options, logger *diag.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		comp:    comp,
		set:     set,
		newPB:   newPB,
		addr:    opts.Addr,
		maxBody: opts.MaxBodyBytes,
		logger:  logger,
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodyBytes
	}
	// 请求共享同一份 Settings，检查点回调与 stdout 不适用于 HTTP
	s.set.Resume = nil
	s.set.OnCommit = nil
	s.set.Stdout = nil

	s.router.Use(requestID)
	s.router.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(corsOptions(opts.AllowedOrigins)))
	}
	s.router.Use(s.accessLog)

	s.router.Get("/health", s.health)
	s.router.Get("/metrics", s.metrics)
	s.router.Post("/v1/translate", s.translate)
	return s
}

func corsOptions(origins []string) cors.Options {
	// 通配时不允许携带凭据
	allowCreds := true
	for _, o := range origins {
		if o == "*" {
			allowCreds = false
			break
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", HeaderRequestID},
		ExposedHeaders:   []string{HeaderWarnings, HeaderRequestID},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}

// Handler 返回根路由（测试与嵌入使用）。
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe 监听直到 ctx 取消，然后在 10 秒内优雅关闭。
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// requestID 沿用来访的 X-Request-Id，否则生成一个 UUID；写入 chi 的请求上下文与响应头。
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" {
			id = diag.NewCorrID()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) reqLogger(r *http.Request) *diag.Logger {
	return s.logger.With("request_id", middleware.GetReqID(r.Context()))
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.reqLogger(r).InfoFinish("http", r.Method+" "+r.URL.Path+" "+strconv.Itoa(status), start, int64(ww.BytesWritten()))
		diag.ObserveDuration("http", r.URL.Path, time.Since(start).Milliseconds())
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) metrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, diag.Snapshot())
}

// translate: POST /v1/translate?source=<lang>&target=<lang>，请求体为 SRT 文本。
func (s *Server) translate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	langs := contract.Languages{
		Source: strings.TrimSpace(q.Get("source")),
		Target: strings.TrimSpace(q.Get("target")),
	}
	if langs.Target == "" {
		s.fail(w, r, http.StatusBadRequest, diag.CodeInput, errors.New("query parameter target is required"))
		return
	}
	pb, err := s.newPB(langs)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, diag.Classify(err), err)
		return
	}
	comp := s.comp
	comp.PromptBuilder = pb
	set := s.set
	set.TargetLanguage = langs.Target

	// 先整体读入，超限在解析前即以 413 拒绝
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		status, code := statusOf(err)
		s.fail(w, r, status, code, err)
		return
	}

	id := middleware.GetReqID(r.Context())
	out, res, err := pipeline.TranslateReader(r.Context(), comp, set, contract.FileID("http/"+id+".srt"), bytes.NewReader(raw), s.reqLogger(r))
	if err != nil {
		status, code := statusOf(err)
		diag.IncOp("http", "translate", "error")
		s.fail(w, r, status, code, err)
		return
	}
	diag.IncOp("http", "translate", "success")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(HeaderWarnings, strconv.Itoa(len(res.Warnings)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, out)
}

// statusOf 将流水线错误映射为 HTTP 状态码。
func statusOf(err error) (int, diag.Code) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge, diag.CodeInput
	}
	code := diag.Classify(err)
	if errors.Is(err, contract.ErrBackend) || errors.Is(err, contract.ErrNoTranslation) {
		return http.StatusBadGateway, code
	}
	switch code {
	case diag.CodeInput:
		return http.StatusBadRequest, code
	case diag.CodeBudget:
		return http.StatusUnprocessableEntity, code
	case diag.CodeCancel:
		return http.StatusServiceUnavailable, code
	}
	return http.StatusInternalServerError, code
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, code diag.Code, err error) {
	s.reqLogger(r).ErrorWith("http", string(code), err.Error(), nil, "", "")
	diag.IncError("http", string(code))
	writeJSON(w, status, errorBody{Error: err.Error(), Code: string(code), RequestID: middleware.GetReqID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
