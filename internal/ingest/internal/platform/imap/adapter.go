// Package imap syncs mailboxes of a generic IMAP account.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/internal/platform"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	log "github.com/sirupsen/logrus"
)

const defaultPort = "993"

// Adapter syncs IMAP mailboxes. The cursor token is "uidvalidity:lastuid"; its
// position is the fetch time, so it only moves forward even when the server
// resets UIDVALIDITY.
type Adapter struct {
	opts platform.Options
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

func New(opts platform.Options) *Adapter {
	return &Adapter{
		opts: opts.WithDefaults(),
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			host, _, _ := net.SplitHostPort(addr)
			d := &tls.Dialer{Config: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}}
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

func (a *Adapter) Platform() connectiondomain.Platform {
	return connectiondomain.PlatformIMAP
}

func (a *Adapter) Fetch(ctx context.Context, req platform.FetchRequest) (*platform.FetchResult, error) {
	creds, err := req.Credentials.GetValidToken(ctx, req.Connection.ID)
	if err != nil {
		return nil, err
	}

	host := req.Connection.Settings.Data().IMAPHost
	if host == "" {
		return nil, connectiondomain.NewAuthError(connectiondomain.PlatformIMAP, req.Connection.ID, "no imap host configured", nil)
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, defaultPort)
	}
	username := creds.Username
	if username == "" {
		username = req.Connection.AccountEmail
	}

	bootstrap := req.Bootstrap(a.opts.Now(), a.opts.BootstrapDays)
	resources := platform.Resources(req.Connection, connectiondomain.Resource{ID: "INBOX", Name: "Inbox"})

	return platform.FanOut(ctx, a.Platform(), req, resources, a.opts,
		func(call *platform.Call, res connectiondomain.Resource, cursor *domain.Cursor) (*platform.ResourceResult, error) {
			var result *platform.ResourceResult
			err := call.Do(func(ctx context.Context) error {
				var err error
				result, err = a.fetchMailbox(ctx, req.Connection.ID, host, username, creds.Password, res, cursor, bootstrap)
				return err
			})
			return result, err
		})
}

// fetchMailbox holds one IMAP session for the duration of a mailbox fetch.
func (a *Adapter) fetchMailbox(ctx context.Context, connectionID, addr, username, password string, res connectiondomain.Resource, cursor *domain.Cursor, bootstrap time.Time) (*platform.ResourceResult, error) {
	conn, err := a.dial(ctx, addr)
	if err != nil {
		return nil, &platform.TransientError{Err: fmt.Errorf("dial %s: %w", addr, err)}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, &platform.TransientError{Err: err}
	}
	defer func() {
		if err := c.Logout(); err != nil {
			log.WithError(err).Debug("[IMAP] Logout failed")
		}
	}()

	if err := c.Login(username, password); err != nil {
		return nil, connectiondomain.NewAuthError(connectiondomain.PlatformIMAP, connectionID, "imap login rejected", err)
	}

	mbox, err := c.Select(res.ID, true)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", res.ID, err)
	}

	fetchedAt := a.opts.Now().UnixMilli()
	validity, lastUID, ok := parseCursor(cursor)
	if ok && validity != mbox.UidValidity {
		log.WithFields(log.Fields{"mailbox": res.ID, "old": validity, "new": mbox.UidValidity}).
			Warn("[IMAP] UIDVALIDITY changed, restarting from bootstrap window")
		ok = false
	}

	var uids []uint32
	if ok {
		// UIDNEXT tells us whether anything arrived without a search round trip.
		if mbox.UidNext == 0 || mbox.UidNext > lastUID+1 {
			seq := new(imap.SeqSet)
			seq.AddRange(lastUID+1, 0)
			uids, err = c.UidSearch(&imap.SearchCriteria{Uid: seq})
		}
	} else {
		lastUID = 0
		criteria := imap.NewSearchCriteria()
		criteria.Since = bootstrap
		uids, err = c.UidSearch(criteria)
	}
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", res.ID, err)
	}

	items, maxUID, err := fetchMessages(c, newerThan(uids, lastUID), res)
	if err != nil {
		return &platform.ResourceResult{Items: items}, fmt.Errorf("fetch %s: %w", res.ID, err)
	}

	return &platform.ResourceResult{
		Items: items,
		Cursor: &domain.Cursor{
			Token:    formatCursor(mbox.UidValidity, max(lastUID, maxUID)),
			Position: fetchedAt,
		},
	}, nil
}

func fetchMessages(c *client.Client, uids []uint32, res connectiondomain.Resource) ([]domain.NormalizedItem, uint32, error) {
	if len(uids) == 0 {
		return nil, 0, nil
	}

	seq := new(imap.SeqSet)
	seq.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seq, items, messages)
	}()

	var (
		out    []domain.NormalizedItem
		maxUID uint32
	)
	for msg := range messages {
		item, err := normalize(msg.Uid, msg.InternalDate, msg.Envelope, msg.GetBody(section), res)
		if err != nil {
			log.WithError(err).WithField("uid", msg.Uid).Warn("[IMAP] Failed to parse message body")
		}
		out = append(out, item)
		maxUID = max(maxUID, msg.Uid)
	}
	if err := <-done; err != nil {
		return out, 0, err
	}
	return out, maxUID, nil
}

// newerThan drops UIDs at or below last. "n:*" always matches the highest
// message, even when it is below n.
func newerThan(uids []uint32, last uint32) []uint32 {
	fresh := uids[:0]
	for _, uid := range uids {
		if uid > last {
			fresh = append(fresh, uid)
		}
	}
	return fresh
}

func parseCursor(cursor *domain.Cursor) (validity, uid uint32, ok bool) {
	if cursor == nil {
		return 0, 0, false
	}
	v, u, found := strings.Cut(cursor.Token, ":")
	if !found {
		return 0, 0, false
	}
	pv, err1 := strconv.ParseUint(v, 10, 32)
	pu, err2 := strconv.ParseUint(u, 10, 32)
	if err := errors.Join(err1, err2); err != nil {
		return 0, 0, false
	}
	return uint32(pv), uint32(pu), true
}

func formatCursor(validity, uid uint32) string {
	return fmt.Sprintf("%d:%d", validity, uid)
}
