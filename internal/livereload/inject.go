package livereload

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const scriptTag = `<script src="` + ScriptPath + `" async></script>`

// maxInjectSize bounds buffering; larger responses pass through untouched.
const maxInjectSize = 4 << 20

// Injector wraps next and inserts the client script into HTML responses.
func Injector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		iw := &injectWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(iw, r)
		iw.finish()
	})
}

// InjectScript returns doc with the script tag placed before the closing
// body tag, or appended when the document has none.
func InjectScript(doc []byte) []byte {
	at := -1
	offset := 0
	z := html.NewTokenizer(bytes.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); atom.Lookup(name) == atom.Body {
				at = offset
			}
		}
		offset += raw
	}
	if at < 0 {
		out := make([]byte, 0, len(doc)+len(scriptTag))
		return append(append(out, doc...), scriptTag...)
	}
	out := make([]byte, 0, len(doc)+len(scriptTag))
	out = append(out, doc[:at]...)
	out = append(out, scriptTag...)
	return append(out, doc[at:]...)
}

type injectWriter struct {
	http.ResponseWriter
	status      int
	buf         bytes.Buffer
	decided     bool
	passthrough bool
}

func (w *injectWriter) WriteHeader(code int) {
	w.status = code
	w.decide()
	if w.passthrough {
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *injectWriter) decide() {
	if w.decided {
		return
	}
	w.decided = true
	ct := w.Header().Get("Content-Type")
	w.passthrough = w.status != http.StatusOK ||
		!strings.HasPrefix(ct, "text/html") ||
		w.Header().Get("Content-Encoding") != ""
}

func (w *injectWriter) Write(p []byte) (int, error) {
	if !w.decided {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(p))
		}
		w.decide()
		if w.passthrough {
			w.ResponseWriter.WriteHeader(w.status)
		}
	}
	if w.passthrough {
		return w.ResponseWriter.Write(p)
	}
	if w.buf.Len()+len(p) > maxInjectSize {
		w.passthrough = true
		w.ResponseWriter.WriteHeader(w.status)
		if _, err := io.Copy(w.ResponseWriter, &w.buf); err != nil {
			return 0, err
		}
		return w.ResponseWriter.Write(p)
	}
	return w.buf.Write(p)
}

func (w *injectWriter) finish() {
	if w.passthrough {
		return
	}
	if !w.decided {
		w.ResponseWriter.WriteHeader(w.status)
		return
	}
	body := InjectScript(w.buf.Bytes())
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.ResponseWriter.WriteHeader(w.status)
	_, _ = w.ResponseWriter.Write(body)
}
