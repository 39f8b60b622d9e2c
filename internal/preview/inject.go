package preview

import (
	"bytes"
	"net/http"
	"strings"
)

const maxInjectBuffer = 512 * 1024

var scriptTag = []byte(`<script async src="` + LiveReloadScriptPath + `"></script>`)

// injectLiveReload adds the live reload client to HTML pages.
func injectLiveReload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isHTMLPage(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		injector := &liveReloadInjector{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(injector, r)
		injector.finalize()
	})
}

func isHTMLPage(path string) bool {
	return path == "" || strings.HasSuffix(path, "/") || strings.HasSuffix(path, ".html")
}

// liveReloadInjector buffers an HTML response and inserts the client script
// before </body>. Non-HTML or oversized responses pass through untouched.
type liveReloadInjector struct {
	http.ResponseWriter
	statusCode    int
	buffer        []byte
	headerWritten bool
	passthrough   bool
}

func (l *liveReloadInjector) WriteHeader(code int) {
	l.statusCode = code
	if l.passthrough {
		l.ResponseWriter.WriteHeader(code)
		l.headerWritten = true
	}
}

func (l *liveReloadInjector) Write(data []byte) (int, error) {
	if !l.passthrough && l.buffer == nil {
		contentType := l.Header().Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") {
			l.startPassthrough()
			return l.ResponseWriter.Write(data)
		}
		l.buffer = make([]byte, 0, 64*1024)
	}
	if l.passthrough {
		return l.ResponseWriter.Write(data)
	}

	if len(l.buffer)+len(data) > maxInjectBuffer {
		l.Header().Del("Content-Length")
		l.startPassthrough()
		if len(l.buffer) > 0 {
			if _, err := l.ResponseWriter.Write(l.buffer); err != nil {
				return 0, err
			}
		}
		return l.ResponseWriter.Write(data)
	}

	l.buffer = append(l.buffer, data...)
	return len(data), nil
}

func (l *liveReloadInjector) startPassthrough() {
	l.passthrough = true
	l.ResponseWriter.WriteHeader(l.statusCode)
	l.headerWritten = true
}

// finalize must be called after the wrapped handler returns.
func (l *liveReloadInjector) finalize() {
	if l.passthrough || len(l.buffer) == 0 {
		if !l.headerWritten {
			l.ResponseWriter.WriteHeader(l.statusCode)
		}
		return
	}

	body := l.buffer
	if i := bytes.LastIndex(bytes.ToLower(body), []byte("</body>")); i >= 0 {
		out := make([]byte, 0, len(body)+len(scriptTag))
		out = append(out, body[:i]...)
		out = append(out, scriptTag...)
		out = append(out, body[i:]...)
		body = out
	}

	l.Header().Del("Content-Length")
	l.ResponseWriter.WriteHeader(l.statusCode)
	_, _ = l.ResponseWriter.Write(body)
}
