package hxlive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/pthm/hxlive/lib/dom"
	"github.com/pthm/hxlive/lib/protocol"
)

// Uploader moves file content to the server, either streamed over the
// socket in binary chunks or as a multipart POST of a whole form.
type Uploader struct {
	host      Host
	session   *Session
	loop      Loop
	client    *http.Client
	chunkSize int
	log       *slog.Logger
}

func newUploader(host Host, session *Session, loop Loop, client *http.Client, chunkSize int, log *slog.Logger) *Uploader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Uploader{
		host:      host,
		session:   session,
		loop:      loop,
		client:    client,
		chunkSize: chunkSize,
		log:       log.With("component", "uploader"),
	}
}

// Upload announces f with an upload envelope and streams its content as
// msgpack chunks of at most the configured size. It returns the ref that
// ties the chunks to the announcement. Must be called on the loop.
func (u *Uploader) Upload(field string, f dom.File) (string, error) {
	ref := ulid.Make().String()
	primer := protocol.New(protocol.TypeUpload, map[string]any{
		"ref":   ref,
		"field": field,
		"name":  f.Name,
		"type":  f.Type,
		"size":  len(f.Content),
	})
	if err := u.session.Send(primer); err != nil {
		return "", fmt.Errorf("hxlive: announce upload %s: %w", f.Name, err)
	}

	for seq, off := 0, 0; off < len(f.Content); seq++ {
		end := min(off+u.chunkSize, len(f.Content))
		frame, err := protocol.EncodeChunk(protocol.Chunk{
			Ref:   ref,
			Field: field,
			Seq:   seq,
			Data:  f.Content[off:end],
		})
		if err != nil {
			return ref, err
		}
		if err := u.session.SendBinary(frame); err != nil {
			return ref, fmt.Errorf("hxlive: upload %s chunk %d: %w", f.Name, seq, err)
		}
		off = end
	}
	u.log.Debug("hxlive: uploaded", "ref", ref, "field", field, "size", len(f.Content))
	return ref, nil
}

// Post submits form as multipart/form-data to the current location using
// the page's cookie jar. The request runs off the loop; done is posted
// back to the loop with nil for any HTTP response and an error only when
// the request could not be made.
func (u *Uploader) Post(ctx context.Context, form *dom.Element, done func(error)) {
	if form.Tag() != "form" {
		u.loop.Post(func() { done(ErrNoForm) })
		return
	}

	body, contentType, err := EncodeMultipart(dom.NewFormData(form))
	if err != nil {
		u.loop.Post(func() { done(err) })
		return
	}
	target := u.host.Location()
	target.Fragment = ""

	client := *u.client
	client.Jar = u.host.CookieJar()

	go func() {
		err := u.post(ctx, &client, target.String(), contentType, body)
		u.loop.Post(func() { done(err) })
	}()
}

func (u *Uploader) post(ctx context.Context, client *http.Client, target, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("hxlive: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("hxlive: upload request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		u.log.Warn("hxlive: upload rejected", "url", target, "status", resp.StatusCode)
	}
	return nil
}

// EncodeMultipart writes a form data set as multipart/form-data and returns
// the body with its content type.
func EncodeMultipart(fd dom.FormData) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, e := range fd {
		if e.File == nil {
			if err := mw.WriteField(e.Name, e.Value); err != nil {
				return nil, "", err
			}
			continue
		}
		typ := e.File.Type
		if typ == "" {
			typ = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(e.Name), escapeQuotes(e.File.Name)))
		h.Set("Content-Type", typ)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(e.File.Content); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
