package document

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

var headerDecoder = new(mime.WordDecoder)

// ParseEmail reads an RFC 822 message. The HTML part is preferred, then the
// plain text part. Subject, From, To and Date are kept as headers.
func ParseEmail(data []byte) (*Document, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email: %w", err)
	}

	headers := make(map[string]string)
	for _, k := range []string{"Subject", "From", "To", "Date"} {
		if v := msg.Header.Get(k); v != "" {
			if dec, err := headerDecoder.DecodeHeader(v); err == nil {
				v = dec
			}
			headers[strings.ToLower(k)] = v
		}
	}

	var htmlBody, textBody string
	err = walkPart(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body,
		func(mediaType string, body []byte) {
			switch mediaType {
			case "text/html":
				if htmlBody == "" {
					htmlBody = string(body)
				}
			case "text/plain":
				if textBody == "" {
					textBody = string(body)
				}
			}
		})
	if err != nil {
		return nil, err
	}

	var doc *Document
	if htmlBody != "" {
		doc, err = ParseHTML([]byte(htmlBody))
		if err != nil {
			return nil, err
		}
	} else {
		doc = ParseText(textBody)
	}
	doc.Headers = headers
	return doc, nil
}

func walkPart(contentType, encoding string, body io.Reader, visit func(string, []byte)) error {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read email part: %w", err)
			}
			if err := walkPart(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part, visit); err != nil {
				return err
			}
		}
	}

	var r io.Reader = body
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		r = quotedprintable.NewReader(body)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, body)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to decode %s part: %w", mediaType, err)
	}
	visit(mediaType, data)
	return nil
}
