// Package mbox implements a Reader that extracts transactions from a local
// mbox export, such as a Google Takeout archive.
package mbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"os"
	"strings"

	gombox "github.com/emersion/go-mbox"
	"github.com/google/uuid"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/ArionMiles/finanzas/pkg/api"
	"github.com/ArionMiles/finanzas/pkg/categorize"
	"github.com/ArionMiles/finanzas/pkg/extractor"
	"github.com/ArionMiles/finanzas/pkg/mailbody"
)

// Config holds configuration for the mbox reader.
type Config struct {
	// Path is the mbox file to read.
	Path string
	// Senders defaults to extractor.DefaultSenders.
	Senders extractor.SenderTable
	// Labels maps merchants to categories.
	Labels api.Labels
}

// Reader reads transactions from an mbox file once.
type Reader struct {
	path        string
	extractor   *extractor.Extractor
	categorizer *categorize.Categorizer
	logger      *slog.Logger
}

// New creates a new mbox reader.
func New(cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return nil, errors.New("path is required")
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("checking mbox file: %w", err)
	}
	if cfg.Senders == nil {
		cfg.Senders = extractor.DefaultSenders()
	}

	return &Reader{
		path:        cfg.Path,
		extractor:   extractor.New(cfg.Senders),
		categorizer: categorize.New(cfg.Labels),
		logger:      logger,
	}, nil
}

// Read sends a transaction for every bank notification in the file, then
// returns. Acknowledgments are drained; a file has nothing to mark.
func (r *Reader) Read(ctx context.Context, out chan<- *api.Transaction, ackChan <-chan string) error {
	defer close(out)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case id, ok := <-ackChan:
				if !ok {
					return
				}
				r.logger.Debug("transaction acknowledged", "message_id", id)
			}
		}
	}()

	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("opening mbox file: %w", err)
	}
	defer f.Close()

	emails, err := ReadEmails(f)
	if err != nil {
		return fmt.Errorf("reading mbox file: %w", err)
	}

	sent := 0
	for _, email := range emails {
		txn, err := r.extractor.Extract(email)
		if err != nil {
			r.logger.Debug("skipping message", "message_id", email.ID, "subject", email.Subject, "reason", err)
			continue
		}
		r.categorizer.Apply(txn)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- txn:
			sent++
		}
	}

	r.logger.Info("mbox read complete", "path", r.path, "messages", len(emails), "transactions", sent)
	return nil
}

// ReadEmails parses every message of an mbox stream. Messages that fail to
// parse are skipped.
func ReadEmails(rd io.Reader) ([]api.RawEmail, error) {
	mr := gombox.NewReader(rd)

	var emails []api.RawEmail
	for i := 0; ; i++ {
		msg, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			return emails, nil
		}
		if err != nil {
			return emails, fmt.Errorf("reading message %d: %w", i, err)
		}

		email, err := ParseMessage(msg)
		if err != nil {
			continue
		}
		if email.ID == "" {
			email.ID = contentID(email)
		}
		emails = append(emails, email)
	}
}

// contentID names a message that has no Message-ID. It depends only on the
// message itself, so the same message gets the same ID in any file.
func contentID(email api.RawEmail) string {
	key := email.From + "\n" + email.Date + "\n" + email.Subject + "\n" + email.Text()
	return "mbox-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

var headerDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(input), nil
}

// ParseMessage converts one RFC 5322 message into a RawEmail. The ID is the
// Message-ID header without angle brackets.
func ParseMessage(r io.Reader) (api.RawEmail, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return api.RawEmail{}, fmt.Errorf("parsing message: %w", err)
	}

	email := api.RawEmail{
		ID:      strings.Trim(strings.TrimSpace(msg.Header.Get("Message-Id")), "<>"),
		From:    decodeHeader(msg.Header.Get("From")),
		Subject: decodeHeader(msg.Header.Get("Subject")),
		Date:    msg.Header.Get("Date"),
	}
	if t, err := msg.Header.Date(); err == nil {
		email.ReceivedAt = t.UTC()
	}

	plain, html, err := bodyText(textproto.MIMEHeader(msg.Header), msg.Body)
	if err != nil {
		return api.RawEmail{}, err
	}
	switch {
	case plain != "":
		email.Body = plain
	case html != "":
		email.Body = mailbody.HTMLToText(html)
	}
	return email, nil
}

func decodeHeader(v string) string {
	decoded, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// bodyText walks a MIME entity and returns its first text/plain and
// text/html contents.
func bodyText(header textproto.MIMEHeader, body io.Reader) (plain, html string, err error) {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		mediaType, params = "text/plain", nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return plain, html, nil
			}
			if err != nil {
				return plain, html, fmt.Errorf("reading multipart: %w", err)
			}
			p, h, err := bodyText(part.Header, part)
			if err != nil {
				return plain, html, err
			}
			if plain == "" {
				plain = p
			}
			if html == "" {
				html = h
			}
		}
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		return "", "", nil
	}

	raw, err := io.ReadAll(transferDecoder(header.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return "", "", fmt.Errorf("reading %s body: %w", mediaType, err)
	}
	text := mailbody.ToUTF8(raw, params["charset"])
	if mediaType == "text/html" {
		return "", text, nil
	}
	return text, "", nil
}

func transferDecoder(encoding string, body io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		return quotedprintable.NewReader(body)
	default:
		return body
	}
}
