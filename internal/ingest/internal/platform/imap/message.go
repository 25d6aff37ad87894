package imap

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	contentdomain "pulse-backend/internal/content/domain"
	"pulse-backend/internal/ingest/domain"

	"github.com/emersion/go-imap"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html"
)

const maxBodyBytes = 256 << 10

// normalize builds an item from the envelope and, when present, the raw RFC 822 body.
// A body that fails to parse still yields an item carrying the envelope.
func normalize(uid uint32, internalDate time.Time, env *imap.Envelope, body io.Reader, res connectiondomain.Resource) (domain.NormalizedItem, error) {
	item := domain.NormalizedItem{
		ItemID:       strconv.FormatUint(uint64(uid), 10),
		ResourceID:   res.ID,
		ResourceName: res.Name,
		ContentType:  contentdomain.ContentTypeEmail,
		Timestamp:    internalDate.UTC(),
		Metadata:     map[string]any{"uid": uid},
	}

	if env != nil {
		item.Title = env.Subject
		if len(env.From) > 0 {
			item.Author = formatAddress(env.From[0])
		}
		if env.MessageId != "" {
			item.ItemID = env.MessageId
			item.Metadata["message_id"] = env.MessageId
		}
		if len(env.To) > 0 {
			to := make([]string, 0, len(env.To))
			for _, addr := range env.To {
				to = append(to, formatAddress(addr))
			}
			item.Metadata["to"] = to
		}
		if item.Timestamp.IsZero() {
			item.Timestamp = env.Date.UTC()
		}
	}

	if body == nil {
		return item, nil
	}
	text, err := readText(body)
	item.Text = text
	return item, err
}

func formatAddress(addr *imap.Address) string {
	email := addr.Address()
	if addr.PersonalName == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", addr.PersonalName, email)
}

// readText returns the first text/plain part, or the first text/html part reduced to text.
func readText(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", err
	}
	defer mr.Close()

	var htmlText string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return htmlText, err
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		data, err := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
		if err != nil {
			return htmlText, err
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			return strings.TrimSpace(string(data)), nil
		case strings.HasPrefix(contentType, "text/html") && htmlText == "":
			htmlText = htmlToText(string(data))
		}
	}
	return htmlText, nil
}

func htmlToText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var (
		b    strings.Builder
		skip bool
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			skip = string(name) == "script" || string(name) == "style"
		case html.EndTagToken:
			skip = false
		case html.TextToken:
			if !skip {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}
